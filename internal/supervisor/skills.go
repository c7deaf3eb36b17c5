package supervisor

// SkillHook identifies which side of an execution turn a skill runs on.
type SkillHook string

const (
	HookPre  SkillHook = "pre"
	HookPost SkillHook = "post"
)

// Skill is a reusable prompt template the Supervisor runs as one or more
// extra turns on the same session, before or after the main execution turn.
type Skill struct {
	ID            string
	Hook          SkillHook
	Template      string
	Loop          bool
	MaxIterations int
	DoneSignal    string
}

// SkillResolver looks up a skill definition by ID. Unresolved IDs are a
// configuration error the caller surfaces rather than one the Supervisor
// tries to paper over.
type SkillResolver interface {
	Resolve(id string) (Skill, bool)
}

// StaticSkillResolver is a SkillResolver backed by an in-memory map, the
// shape the Workflow Settings/Task Defaults layer populates at startup.
type StaticSkillResolver map[string]Skill

func (m StaticSkillResolver) Resolve(id string) (Skill, bool) {
	s, ok := m[id]
	return s, ok
}
