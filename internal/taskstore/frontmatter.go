// Package taskstore persists Task records as Markdown files with a YAML
// frontmatter block, one file per task, under a workspace's tasks
// directory.
package taskstore

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patleeman/taskfactory/internal/core"
)

const frontmatterDelim = "---"

// splitFrontmatter separates a task file's leading "---\n...\n---\n" block
// from its Markdown body. A file with no frontmatter delimiters is treated
// as pure body with an empty frontmatter block.
func splitFrontmatter(raw string) (frontmatter string, body string, err error) {
	trimmed := strings.TrimPrefix(raw, "﻿")
	if !strings.HasPrefix(trimmed, frontmatterDelim) {
		return "", raw, nil
	}

	rest := trimmed[len(frontmatterDelim):]
	rest = strings.TrimPrefix(rest, "\n")
	idx := strings.Index(rest, "\n"+frontmatterDelim)
	if idx == -1 {
		return "", "", fmt.Errorf("taskstore: unterminated frontmatter block")
	}

	fm := rest[:idx]
	remainder := rest[idx+len("\n"+frontmatterDelim):]
	remainder = strings.TrimPrefix(remainder, "\n")
	remainder = strings.TrimPrefix(remainder, "\n")
	return fm, remainder, nil
}

// decodeTask parses a task file's raw bytes into a Task. Frontmatter keys
// the current Task struct does not model are preserved in Unknown so a
// round-trip through an older or newer build never drops data.
func decodeTask(id core.TaskID, raw string) (*core.Task, error) {
	fm, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, err
	}

	var task core.Task
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &task); err != nil {
			return nil, fmt.Errorf("taskstore: decoding frontmatter for %s: %w", id, err)
		}
	}

	var raw2 map[string]interface{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &raw2); err != nil {
			return nil, fmt.Errorf("taskstore: decoding raw frontmatter for %s: %w", id, err)
		}
	}
	task.Unknown = unknownFields(raw2)
	task.Body = body
	if task.ID == "" {
		task.ID = id
	}
	return &task, nil
}

// knownFrontmatterKeys mirrors core.Task's yaml tags. Kept as an explicit
// list rather than reflected at runtime since the set changes rarely and a
// static list is easier to audit against the struct.
var knownFrontmatterKeys = map[string]bool{
	"id": true, "title": true, "created": true, "updated": true,
	"started": true, "completed": true, "phase": true, "order": true,
	"planningStatus": true, "plan": true, "acceptanceCriteria": true,
	"attachments": true, "planningModelConfig": true, "executionModelConfig": true,
	"planningFallbackModels": true, "executionFallbackModels": true,
	"preExecutionSkills": true, "postExecutionSkills": true, "sessionFile": true,
}

func unknownFields(raw map[string]interface{}) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]interface{})
	for k, v := range raw {
		if !knownFrontmatterKeys[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// encodeTask renders a task back to "frontmatter block + blank line + body"
// with the stable key order defined by fieldOrder, bumping nothing itself —
// callers are responsible for setting Updated before encoding.
func encodeTask(task *core.Task) ([]byte, error) {
	merged, err := mergedFrontmatter(task)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(frontmatterDelim)
	b.WriteString("\n")
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(merged); err != nil {
		return nil, fmt.Errorf("taskstore: encoding frontmatter for %s: %w", task.ID, err)
	}
	_ = enc.Close()
	b.WriteString(frontmatterDelim)
	b.WriteString("\n\n")
	b.WriteString(task.Body)
	return []byte(b.String()), nil
}

// fieldOrder is the stable key order writes use, matching the struct field
// order in core.Task so diffs stay small across re-saves.
var fieldOrder = []string{
	"id", "title", "created", "updated", "started", "completed",
	"phase", "order", "planningStatus", "plan", "acceptanceCriteria",
	"attachments", "planningModelConfig", "executionModelConfig",
	"planningFallbackModels", "executionFallbackModels",
	"preExecutionSkills", "postExecutionSkills", "sessionFile",
}

// mergedFrontmatter produces an ordered map combining known struct fields
// with preserved Unknown keys, appended after the known ones in sorted
// order so output stays deterministic.
func mergedFrontmatter(task *core.Task) (*yaml.Node, error) {
	knownBytes, err := yaml.Marshal(task)
	if err != nil {
		return nil, err
	}
	var known map[string]interface{}
	if err := yaml.Unmarshal(knownBytes, &known); err != nil {
		return nil, err
	}

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	appendKV := func(key string, value interface{}) error {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(key); err != nil {
			return err
		}
		valNode := &yaml.Node{}
		if err := valNode.Encode(value); err != nil {
			return err
		}
		node.Content = append(node.Content, keyNode, valNode)
		return nil
	}

	for _, key := range fieldOrder {
		v, ok := known[key]
		if !ok {
			continue
		}
		if isEmptyFrontmatterValue(v) {
			continue
		}
		if err := appendKV(key, v); err != nil {
			return nil, err
		}
	}

	unknownKeys := make([]string, 0, len(task.Unknown))
	for k := range task.Unknown {
		unknownKeys = append(unknownKeys, k)
	}
	sortStrings(unknownKeys)
	for _, k := range unknownKeys {
		if err := appendKV(k, task.Unknown[k]); err != nil {
			return nil, err
		}
	}

	return node, nil
}

func isEmptyFrontmatterValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	}
	return false
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
