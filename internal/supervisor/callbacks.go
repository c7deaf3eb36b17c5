package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/patleeman/taskfactory/internal/attachments"
	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/taskstore"
)

// registerCallbacks wires the tool callbacks a session's extension tools
// can invoke for this task: save_plan, task_complete, attach_task_file.
// Removed by teardown so a stale callback never outlives its session.
func (s *Supervisor) registerCallbacks(task *core.Task, st *sessionState) {
	s.tools.RegisterPlan(task.ID, func(taskID core.TaskID, criteria []string, plan *core.Plan) error {
		if plan.IsEmpty() {
			return core.ErrValidation("PLAN_EMPTY", "save_plan requires a non-empty plan")
		}
		if len(criteria) == 0 {
			return core.ErrValidation("PLAN_CRITERIA_EMPTY", "save_plan requires a non-empty acceptanceCriteria array")
		}
		for _, c := range criteria {
			if strings.TrimSpace(c) == "" {
				return core.ErrValidation("PLAN_CRITERIA_EMPTY", "acceptanceCriteria items must be non-empty after trim")
			}
		}
		if err := plan.Validate(); err != nil {
			return core.ErrValidation("PLAN_INVALID", err.Error())
		}
		plan.Normalize()
		_, err := s.tasks.Update(taskID, taskstore.FrontmatterPatch{
			"plan":               plan,
			"acceptanceCriteria": criteria,
			"planningStatus":     core.PlanningStatusCompleted,
		})
		return err
	})

	s.tools.RegisterComplete(task.ID, func(taskID core.TaskID, summary string) error {
		st.agentSignaledComplete = true
		st.completionSummary = summary
		return nil
	})

	s.tools.RegisterAttachFile(task.ID, func(taskID core.TaskID, sourcePath, filenameOverride string) (core.AttachmentRef, error) {
		store := attachments.NewStore(s.taskDir(taskID))
		ref, err := store.Attach(sourcePath, filenameOverride)
		if err != nil {
			return core.AttachmentRef{}, err
		}
		current, err := s.tasks.Read(taskID)
		if err != nil {
			_ = store.Delete(ref.StoredName)
			return core.AttachmentRef{}, err
		}
		attachmentsList := append(append([]core.AttachmentRef{}, current.Attachments...), ref)
		if _, err := s.tasks.Update(taskID, taskstore.FrontmatterPatch{"attachments": attachmentsList}); err != nil {
			_ = store.Delete(ref.StoredName)
			return core.AttachmentRef{}, err
		}
		return ref, nil
	})
}

// runSkills runs every skill ID in task's list for hook sequentially on the
// current session. A failure aborts the caller's turn (pre-skills only;
// post-skills use runSkillsBestEffort instead).
func (s *Supervisor) runSkills(ctx context.Context, task *core.Task, st *sessionState, hook SkillHook) error {
	ids := task.PreExecutionSkills
	if hook == HookPost {
		ids = task.PostExecutionSkills
	}
	for _, id := range ids {
		skill, ok := s.skills.Resolve(id)
		if !ok {
			return fmt.Errorf("skill %q not found", id)
		}
		if err := s.runSkillTurns(ctx, st, skill); err != nil {
			return err
		}
	}
	return nil
}

// runSkillsBestEffort runs post-execution skills, logging and skipping any
// that fail rather than aborting the task.
func (s *Supervisor) runSkillsBestEffort(ctx context.Context, task *core.Task, st *sessionState, hook SkillHook) {
	for _, id := range task.PostExecutionSkills {
		skill, ok := s.skills.Resolve(id)
		if !ok {
			s.systemEvent(task.ID, "post-skill-not-found", id)
			continue
		}
		if err := s.runSkillTurns(ctx, st, skill); err != nil {
			s.systemEvent(task.ID, "post-skill-failed", fmt.Sprintf("%s: %v", id, err))
		}
	}
}

func (s *Supervisor) runSkillTurns(ctx context.Context, st *sessionState, skill Skill) error {
	if !skill.Loop {
		return st.session.FollowUp(ctx, skill.Template, nil)
	}

	maxIter := skill.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}
	for i := 0; i < maxIter; i++ {
		if err := st.session.FollowUp(ctx, skill.Template, nil); err != nil {
			return err
		}
		if skill.DoneSignal != "" && strings.Contains(st.streamText.String(), skill.DoneSignal) {
			return nil
		}
	}
	return nil
}
