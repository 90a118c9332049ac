// Package cli implements the conflictmap command line tool.
//
// Commands:
//
//	conflictmap scan    [-plugins DIR] [-mode all|active-only] [-json]
//	conflictmap latest  [-json]
//	conflictmap show    -id N | N
//	conflictmap list    [-limit 20] [-offset 0]
//	conflictmap prune   [-older-than 720h]
//	conflictmap stats
//	conflictmap known   [-file known_conflicts.yaml]
//
// Every command that touches plugins or scan history accepts -config, which
// loads a YAML file before CONFLICTMAP_* environment variables, and the
// -plugins, -driver, -db and -mode overrides. Failures are returned to the
// caller; cmd/conflictmap prints the diagnostic code and exits 1.
package cli
