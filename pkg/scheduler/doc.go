// Package scheduler runs periodic plugin scans and snapshot retention
// cleanup on cron schedules (robfig/cron, standard five-field syntax or
// descriptors such as @daily). Overlapping runs of the same job are skipped.
package scheduler
