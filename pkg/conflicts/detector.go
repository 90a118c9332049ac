package conflicts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

// DefaultLatePriority is the priority from which a registration claims the
// "run last" slot of a hook.
const DefaultLatePriority = 999

// DefaultFinalizerPriority is the lowest priority at which the highest
// registration on a finalizer hook claims the late slot.
const DefaultFinalizerPriority = 100

// DefaultFinalizerHooks are hooks typically used for output buffering and
// final flushes. On these the highest priority at or above the finalizer
// floor is the late slot.
var DefaultFinalizerHooks = []string{"shutdown", "wp_print_footer_scripts", "template_redirect"}

// Options configures a Detector
type Options struct {
	LatePriority      int
	FinalizerPriority int
	FinalizerHooks    []string
	Dataset           *Dataset
	Log               *logrus.Logger
}

// Detector finds hook, resource and known-pair conflicts in a plugin set
type Detector struct {
	latePriority      int
	finalizerPriority int
	finalizers        map[string]bool
	known             []KnownConflict
	log               *logrus.Logger
}

// NewDetector creates a detector. A nil dataset disables known-pair checks.
func NewDetector(opts Options) *Detector {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.LatePriority == 0 {
		opts.LatePriority = DefaultLatePriority
	}
	if opts.FinalizerPriority == 0 {
		opts.FinalizerPriority = DefaultFinalizerPriority
	}
	if opts.FinalizerHooks == nil {
		opts.FinalizerHooks = DefaultFinalizerHooks
	}

	finalizers := make(map[string]bool, len(opts.FinalizerHooks))
	for _, h := range opts.FinalizerHooks {
		finalizers[h] = true
	}

	d := &Detector{
		latePriority:      opts.LatePriority,
		finalizerPriority: opts.FinalizerPriority,
		finalizers:        finalizers,
		log:               opts.Log,
	}
	if opts.Dataset != nil {
		d.known = opts.Dataset.Conflicts
	}
	return d
}

// Detect returns the de-duplicated conflicts of the plugin set ordered by
// severity descending, then hook name ascending. It never fails; an empty
// input yields an empty, non-nil slice.
func (d *Detector) Detect(list []plugins.Plugin) []ConflictRecord {
	records := make([]ConflictRecord, 0)
	records = append(records, d.detectHookConflicts(list)...)
	records = append(records, d.detectResourceConflicts(list)...)
	records = append(records, d.detectKnownIncompatible(list)...)

	records = dedupe(records)
	sortRecords(records)

	d.log.WithField("conflicts", len(records)).Debug("Conflict detection complete")
	return records
}

// detectHookConflicts sorts every registration by (hook, priority, plugin)
// and sweeps the groups once.
func (d *Detector) detectHookConflicts(list []plugins.Plugin) []ConflictRecord {
	var regs []plugins.HookRegistration
	for i := range list {
		regs = append(regs, list[i].Hooks...)
	}

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].HookName != regs[j].HookName {
			return regs[i].HookName < regs[j].HookName
		}
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority < regs[j].Priority
		}
		return regs[i].PluginID < regs[j].PluginID
	})

	var records []ConflictRecord
	for start := 0; start < len(regs); {
		end := start + 1
		for end < len(regs) && regs[end].HookName == regs[start].HookName {
			end++
		}
		records = append(records, d.classifyHook(regs[start:end])...)
		start = end
	}

	return records
}

// classifyHook inspects the registrations of a single hook, sorted by priority
func (d *Detector) classifyHook(group []plugins.HookRegistration) []ConflictRecord {
	if len(distinctPlugins(group)) < 2 {
		return nil
	}

	hook := group[0].HookName
	maxPriority := group[len(group)-1].Priority
	isLate := func(priority int) bool {
		if priority >= d.latePriority {
			return true
		}
		return d.finalizers[hook] && priority == maxPriority && priority >= d.finalizerPriority
	}

	var records []ConflictRecord

	var late []plugins.HookRegistration
	for _, r := range group {
		if isLate(r.Priority) {
			late = append(late, r)
		}
	}
	lateIDs := distinctPlugins(late)
	lateReported := len(lateIDs) >= 2
	if lateReported {
		records = append(records, ConflictRecord{
			Type:      TypeMutualExclusion,
			PluginIDs: lateIDs,
			HookName:  hook,
			Severity:  SeverityHigh,
			Description: fmt.Sprintf("%d plugins claim the final execution slot of hook %q: %s. Only one of them can run last",
				len(lateIDs), hook, strings.Join(lateIDs, ", ")),
		})
	}

	for start := 0; start < len(group); {
		end := start + 1
		for end < len(group) && group[end].Priority == group[start].Priority {
			end++
		}

		priority := group[start].Priority
		ids := distinctPlugins(group[start:end])
		if len(ids) >= 2 && !(lateReported && isLate(priority)) {
			records = append(records, ConflictRecord{
				Type:      TypeHookPriorityCollision,
				PluginIDs: ids,
				HookName:  hook,
				Severity:  SeverityMedium,
				Description: fmt.Sprintf("%d plugins register hook %q at priority %d: %s. Execution order between them is undefined",
					len(ids), hook, priority, strings.Join(ids, ", ")),
			})
		}
		start = end
	}

	return records
}

type resourceUse struct {
	resource plugins.Resource
	pluginID string
}

// detectResourceConflicts finds functions, globals and tables defined by more than one plugin
func (d *Detector) detectResourceConflicts(list []plugins.Plugin) []ConflictRecord {
	var uses []resourceUse
	for i := range list {
		for _, r := range list[i].Resources {
			uses = append(uses, resourceUse{resource: r, pluginID: list[i].ID})
		}
	}

	sort.Slice(uses, func(i, j int) bool {
		a, b := uses[i], uses[j]
		if a.resource.Kind != b.resource.Kind {
			return a.resource.Kind < b.resource.Kind
		}
		if a.resource.Name != b.resource.Name {
			return a.resource.Name < b.resource.Name
		}
		return a.pluginID < b.pluginID
	})

	var records []ConflictRecord
	for start := 0; start < len(uses); {
		end := start + 1
		for end < len(uses) && uses[end].resource == uses[start].resource {
			end++
		}

		var ids []string
		for _, u := range uses[start:end] {
			if len(ids) == 0 || ids[len(ids)-1] != u.pluginID {
				ids = append(ids, u.pluginID)
			}
		}

		if len(ids) >= 2 {
			res := uses[start].resource
			severity := SeverityHigh
			if res.Kind == plugins.ResourceGlobal {
				severity = SeverityMedium
			}
			records = append(records, ConflictRecord{
				Type:        TypeMutualExclusion,
				PluginIDs:   ids,
				Severity:    severity,
				Resource:    &res,
				Description: resourceDescription(res, ids),
			})
		}
		start = end
	}

	return records
}

func resourceDescription(res plugins.Resource, ids []string) string {
	switch res.Kind {
	case plugins.ResourceFunction:
		return fmt.Sprintf("Function %s() is declared by %d plugins: %s. Loading both causes a fatal redeclaration error",
			res.Name, len(ids), strings.Join(ids, ", "))
	case plugins.ResourceTable:
		return fmt.Sprintf("Database table %s is used by %d plugins: %s. Their data may overwrite each other",
			res.Name, len(ids), strings.Join(ids, ", "))
	default:
		return fmt.Sprintf("Global variable $%s is shared by %d plugins: %s. One may overwrite the other's state",
			res.Name, len(ids), strings.Join(ids, ", "))
	}
}

// detectKnownIncompatible matches the dataset against the installed ids and
// text domains in O(K).
func (d *Detector) detectKnownIncompatible(list []plugins.Plugin) []ConflictRecord {
	if len(d.known) == 0 || len(list) < 2 {
		return nil
	}

	present := make(map[string]string, len(list)*2)
	for i := range list {
		if td := plugins.NormalizeSlug(list[i].TextDomain); td != "" {
			present[td] = list[i].ID
		}
	}
	for i := range list {
		present[list[i].ID] = list[i].ID
	}

	var records []ConflictRecord
	for _, k := range d.known {
		a, okA := present[k.PluginA]
		b, okB := present[k.PluginB]
		if !okA || !okB || a == b {
			continue
		}

		ids := []string{a, b}
		sort.Strings(ids)
		records = append(records, ConflictRecord{
			Type:        TypeKnownIncompatible,
			PluginIDs:   ids,
			Severity:    SeverityCritical,
			Description: k.Description,
			Resolution:  k.Resolution,
		})
	}

	return records
}

// distinctPlugins returns the sorted distinct plugin ids of the registrations
func distinctPlugins(regs []plugins.HookRegistration) []string {
	seen := make(map[string]bool, len(regs))
	var ids []string
	for _, r := range regs {
		if !seen[r.PluginID] {
			seen[r.PluginID] = true
			ids = append(ids, r.PluginID)
		}
	}
	sort.Strings(ids)
	return ids
}

func dedupe(records []ConflictRecord) []ConflictRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		k := r.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func sortRecords(records []ConflictRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.HookName != b.HookName {
			return a.HookName < b.HookName
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.key() < b.key()
	})
}
