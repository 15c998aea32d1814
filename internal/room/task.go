package room

import (
	"encoding/json"
	"fmt"
)

const (
	typeTriggerSubscription  = "TaskTriggerSubscription"
	typeEffectorSubscription = "TaskEffectorSubscription"
)

// TaskKind classifies a decoded task.
type TaskKind int

const (
	// TaskDirect fires its effect immediately from a trigger; the platform
	// does not persist direct bindings across sessions.
	TaskDirect TaskKind = iota
	// TaskQuestTrigger advances a quest when its trigger fires.
	TaskQuestTrigger
	// TaskQuestEffect fires its effect when the referenced quest reaches a
	// state; persisted by the platform.
	TaskQuestEffect
)

// Payload is a tagged trigger/effect record: a "$type" discriminator plus
// arbitrary kind-specific fields, preserved verbatim.
type Payload struct {
	Type   string
	Fields map[string]json.RawMessage
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var typ string
	if raw, ok := m["$type"]; ok {
		if err := json.Unmarshal(raw, &typ); err != nil {
			return fmt.Errorf("$type: %w", err)
		}
	}
	if typ == "" {
		return fmt.Errorf("payload missing $type")
	}
	delete(m, "$type")
	p.Type = typ
	p.Fields = m
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(p.Fields)+1)
	for k, v := range p.Fields {
		m[k] = v
	}
	m["$type"] = rawMessage(p.Type)
	return json.Marshal(m)
}

// FieldString returns a string-typed payload field, "" if absent.
func (p *Payload) FieldString(key string) string {
	if p == nil {
		return ""
	}
	raw, ok := p.Fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// DirectEffector wraps the effect of a direct trigger binding.
type DirectEffector struct {
	Effector    *Payload `json:"Effector"`
	ID          string   `json:"Id,omitempty"`
	TargetState int      `json:"TargetState,omitempty"`
	Name        string   `json:"Name,omitempty"`
}

// Task is one interaction rule. The wire shape is a tagged record; unknown
// fields are preserved so round-tripping a snapshot never drops data.
type Task struct {
	Type        string
	ID          string
	Name        string
	TargetState int
	QuestID     string
	Trigger     *Payload
	Direct      *DirectEffector
	Effector    *Payload

	rest map[string]json.RawMessage
}

func (t *Task) Kind() TaskKind {
	if t.Type == typeEffectorSubscription {
		return TaskQuestEffect
	}
	if t.QuestID != "" {
		return TaskQuestTrigger
	}
	return TaskDirect
}

// QuestLinked reports whether the task targets a quest state.
func (t *Task) QuestLinked() bool { return t.Kind() != TaskDirect }

// EffectorPayload returns the task's effect payload regardless of wrapping.
func (t *Task) EffectorPayload() *Payload {
	if t.Direct != nil && t.Direct.Effector != nil {
		return t.Direct.Effector
	}
	return t.Effector
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	take := func(key string, dst any) error {
		raw, ok := m[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		delete(m, key)
		return nil
	}
	for _, f := range []struct {
		key string
		dst any
	}{
		{"$type", &t.Type},
		{"Id", &t.ID},
		{"Name", &t.Name},
		{"TargetState", &t.TargetState},
		{"TaskTriggerId", &t.QuestID},
		{"Trigger", &t.Trigger},
		{"DirectEffector", &t.Direct},
		{"Effector", &t.Effector},
	} {
		if err := take(f.key, f.dst); err != nil {
			return err
		}
	}
	switch t.Type {
	case typeTriggerSubscription:
		if t.Trigger == nil {
			return fmt.Errorf("%s missing Trigger", t.Type)
		}
	case typeEffectorSubscription:
		if t.Effector == nil {
			return fmt.Errorf("%s missing Effector", t.Type)
		}
	case "":
		return fmt.Errorf("task missing $type")
	default:
		return fmt.Errorf("unknown task $type %q", t.Type)
	}
	if len(m) > 0 {
		t.rest = m
	}
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(t.rest)+8)
	for k, v := range t.rest {
		m[k] = v
	}
	m["$type"] = rawMessage(t.Type)
	if t.ID != "" {
		m["Id"] = rawMessage(t.ID)
	}
	if t.Name != "" || t.Kind() == TaskDirect {
		m["Name"] = rawMessage(t.Name)
	}
	if t.TargetState != 0 || t.Kind() == TaskDirect {
		m["TargetState"] = rawMessage(t.TargetState)
	}
	if t.QuestID != "" {
		m["TaskTriggerId"] = rawMessage(t.QuestID)
	}
	if t.Trigger != nil {
		m["Trigger"] = rawMessage(t.Trigger)
	}
	if t.Direct != nil {
		m["DirectEffector"] = rawMessage(t.Direct)
	}
	if t.Effector != nil {
		m["Effector"] = rawMessage(t.Effector)
	}
	return json.Marshal(m)
}

// LogicEntry is the ordered task list attached to one item id, plus any
// extra per-item logic fields the platform stores alongside it.
type LogicEntry struct {
	Tasks []Task

	rest map[string]json.RawMessage
}

func (e *LogicEntry) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if raw, ok := m["Tasks"]; ok {
		if err := json.Unmarshal(raw, &e.Tasks); err != nil {
			return err
		}
		delete(m, "Tasks")
	}
	if len(m) > 0 {
		e.rest = m
	}
	return nil
}

func (e LogicEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(e.rest)+1)
	for k, v := range e.rest {
		m[k] = v
	}
	tasks := e.Tasks
	if tasks == nil {
		tasks = []Task{}
	}
	m["Tasks"] = rawMessage(tasks)
	return json.Marshal(m)
}

// HasEffects reports whether any task in the entry carries an effect.
func (e *LogicEntry) HasEffects() bool {
	if e == nil {
		return false
	}
	for i := range e.Tasks {
		if e.Tasks[i].EffectorPayload() != nil {
			return true
		}
	}
	return false
}

// DecodeLogicValue decodes one at-rest logic value. At rest the platform
// stores logic entries as compact JSON strings; older in-flight data may
// hold a bare object.
func DecodeLogicValue(raw json.RawMessage) (*LogicEntry, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var e LogicEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EncodeLogicValue encodes a logic entry back to its at-rest string form.
func EncodeLogicValue(e *LogicEntry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
