// Package overlap clusters plugins that provide the same capability.
//
// A cluster's redundancy score is the mean pairwise Jaccard similarity of its
// members' capability sets: 1.0 when every member offers exactly the same
// capabilities, lower as their sets diverge.
package overlap
