package room_test

import (
	"encoding/json"
	"strings"
	"testing"

	"roomdex/internal/room"
)

func TestTaskCodecPreservesUnknownFields(t *testing.T) {
	in := `{"$type":"TaskTriggerSubscription","Id":"t9","Name":"","TargetState":0,` +
		`"Trigger":{"$type":"OnEnterEvent","Radius":3.5},` +
		`"DirectEffector":{"Effector":{"$type":"PlaySoundOnce","SoundId":"chime"}},` +
		`"CustomPlatformField":{"nested":true}}`

	var task room.Task
	if err := json.Unmarshal([]byte(in), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"CustomPlatformField":{"nested":true}`, `"Radius":3.5`, `"SoundId":"chime"`} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("round trip dropped %s:\n%s", want, out)
		}
	}
}

func TestTaskKindClassification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want room.TaskKind
	}{
		{
			"direct",
			`{"$type":"TaskTriggerSubscription","Trigger":{"$type":"OnClickEvent"}}`,
			room.TaskDirect,
		},
		{
			"quest trigger",
			`{"$type":"TaskTriggerSubscription","TaskTriggerId":"mlhabcdefgh1234","TargetState":111,"Trigger":{"$type":"OnClickEvent"}}`,
			room.TaskQuestTrigger,
		},
		{
			"quest effect",
			`{"$type":"TaskEffectorSubscription","TaskTriggerId":"mlhabcdefgh1234","TargetState":1,"Name":"1_FindKey","Effector":{"$type":"ShowObjectEvent"}}`,
			room.TaskQuestEffect,
		},
	}
	for _, tc := range cases {
		var task room.Task
		if err := json.Unmarshal([]byte(tc.in), &task); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if got := task.Kind(); got != tc.want {
			t.Fatalf("%s: kind = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTaskRejectsUnknownType(t *testing.T) {
	var task room.Task
	err := json.Unmarshal([]byte(`{"$type":"TaskSomethingElse"}`), &task)
	if err == nil {
		t.Fatal("expected error")
	}
	if err = json.Unmarshal([]byte(`{"Trigger":{"$type":"OnClickEvent"}}`), &task); err == nil {
		t.Fatal("expected error for missing $type")
	}
	if err = json.Unmarshal([]byte(`{"$type":"TaskTriggerSubscription"}`), &task); err == nil {
		t.Fatal("expected error for missing Trigger")
	}
}

func TestDecodeLogicValueBothForms(t *testing.T) {
	obj := `{"Tasks":[{"$type":"TaskTriggerSubscription","Trigger":{"$type":"OnTimerEvent"}}]}`

	fromObj, err := room.DecodeLogicValue(json.RawMessage(obj))
	if err != nil {
		t.Fatalf("object form: %v", err)
	}
	quoted, _ := json.Marshal(obj)
	fromStr, err := room.DecodeLogicValue(quoted)
	if err != nil {
		t.Fatalf("string form: %v", err)
	}
	if len(fromObj.Tasks) != 1 || len(fromStr.Tasks) != 1 {
		t.Fatalf("tasks = %d / %d", len(fromObj.Tasks), len(fromStr.Tasks))
	}

	// Encode always lands on the at-rest string form.
	s, err := room.EncodeLogicValue(fromObj)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := room.DecodeLogicValue(json.RawMessage(mustQuote(s)))
	if err != nil {
		t.Fatalf("decode encoded: %v", err)
	}
	if back.Tasks[0].Trigger.Type != "OnTimerEvent" {
		t.Fatalf("trigger = %q", back.Tasks[0].Trigger.Type)
	}
}

func mustQuote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func TestLogicEntryHasEffects(t *testing.T) {
	var withEffect, without room.LogicEntry
	effect := `{"Tasks":[{"$type":"TaskTriggerSubscription","Trigger":{"$type":"OnClickEvent"},` +
		`"DirectEffector":{"Effector":{"$type":"HideObjectEvent"}}}]}`
	bare := `{"Tasks":[{"$type":"TaskTriggerSubscription","Trigger":{"$type":"OnClickEvent"}}]}`
	if err := json.Unmarshal([]byte(effect), &withEffect); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(bare), &without); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !withEffect.HasEffects() {
		t.Fatal("effect not detected")
	}
	if without.HasEffects() {
		t.Fatal("trigger-only entry reported effects")
	}
	var nilEntry *room.LogicEntry
	if nilEntry.HasEffects() {
		t.Fatal("nil entry reported effects")
	}
}

func TestSortIDsNumericFirst(t *testing.T) {
	ids := []string{"item-b", "10", "2", "item-a", "1"}
	room.SortIDs(ids)
	want := []string{"1", "2", "10", "item-a", "item-b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}
