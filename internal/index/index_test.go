package index_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"roomdex/internal/index"
	"roomdex/internal/protocol"
	"roomdex/internal/room"
	"roomdex/internal/tuning"
)

func item(prefab string, x, y, z float64) room.Item {
	return room.Item{
		"prefabName": prefab,
		"pos":        map[string]any{"x": x, "y": y, "z": z},
	}
}

func entry(t *testing.T, raw string) *room.LogicEntry {
	t.Helper()
	var e room.LogicEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	return &e
}

const clickSound = `{"Tasks":[{"$type":"TaskTriggerSubscription","Trigger":{"$type":"OnClickEvent"},` +
	`"DirectEffector":{"Effector":{"$type":"PlaySoundOnce"}}}]}`

const questShow = `{"Tasks":[{"$type":"TaskEffectorSubscription","TaskTriggerId":"mlhquestquest001",` +
	`"TargetState":1,"Name":"1_FindKey","Effector":{"$type":"ShowObjectEvent"}}]}`

func TestBuildDeterministic(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Items["1"] = item("SpawnPoint", 0, 0, 0)
	snap.Items["2"] = item("ResizableCube", 25, 0, -5)
	snap.Items["3"] = item("WorldText", -30, 1, 45)
	snap.Logic["2"] = entry(t, clickSound)

	pol := tuning.Default()
	first, err := index.Build(snap, "demo", pol)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := index.Build(snap, "demo", pol)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if first != second {
		t.Fatal("index output is not deterministic")
	}
	if !strings.HasPrefix(first, "# Room Index: demo\n") {
		t.Fatalf("header:\n%s", first[:60])
	}
}

func TestBuildSections(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Items["1"] = item("SpawnPoint", 0, 0, 0)
	snap.Items["2"] = item("ResizableCube", 5, 0, 5)
	snap.Items["3"] = item("ResizableCube", 6, 0, 5)
	snap.Items["3"]["parentItemID"] = "2"
	snap.Logic["2"] = entry(t, clickSound)
	snap.Settings["spawnPosition"] = map[string]any{"x": 1.0, "y": 2.0, "z": 3.0}
	snap.Settings["Variables"] = []any{
		map[string]any{"Name": "score", "Type": "number", "Scope": "player"},
	}
	snap.Quests["mlhdemo00000001"] = room.Quest{
		"id": "mlhdemo00000001", "EntryId": "e1", "Name": "1_FindKey", "Status": room.QuestInProgress,
	}
	snap.Quests["mlhdemo00000002"] = room.Quest{
		"id": "mlhdemo00000002", "EntryId": "e1", "Name": "1_FindKey", "Status": room.QuestCompleted,
	}

	out, err := index.Build(snap, "demo", tuning.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, want := range []string{
		"- Items: 3 (ID range: 1-3)",
		"- Quests: 1",
		"- Variables: score (number, player)",
		"- Spawn: (1.0, 2.0, 3.0)",
		"## Item Counts by Type",
		"  ResizableCube: 2",
		"| 2 | Cube | (5.0, 0.0, 5.0) | Click | 1 | Sound |",
		"## Spatial Map",
		"| 2 | Cube | (5.0, 0.0, 5.0) | 3 (Cube) |",
		"| 1 | FindKey | inProgress -> completed | none |",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestBuildAbortsOnIncompletePosition(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Items["1"] = item("SpawnPoint", 0, 0, 0)
	snap.Items["2"] = room.Item{"prefabName": "ResizableCube", "pos": map[string]any{"x": 1.0, "z": 2.0}}
	snap.Items["3"] = room.Item{"prefabName": "ResizableCube"}

	_, err := index.Build(snap, "demo", tuning.Default())
	if err == nil {
		t.Fatal("expected error")
	}
	issues := protocol.AsIssues(err)
	if len(issues) != 1 || issues[0].Code != protocol.ErrSchema {
		t.Fatalf("issues = %v", issues)
	}
	if len(issues[0].IDs) != 2 || issues[0].IDs[0] != "2" || issues[0].IDs[1] != "3" {
		t.Fatalf("ids = %v", issues[0].IDs)
	}
}

func TestInteractiveNarrowingOnLargeRooms(t *testing.T) {
	snap := room.NewSnapshot()
	for i := 1; i <= 120; i++ {
		snap.Items[fmt.Sprintf("%d", i)] = item("ResizableCube", float64(i), 0, 0)
	}
	// 10 player-triggered, 5 quest-driven interactive items.
	for i := 1; i <= 10; i++ {
		snap.Logic[fmt.Sprintf("%d", i)] = entry(t, clickSound)
	}
	for i := 11; i <= 15; i++ {
		snap.Logic[fmt.Sprintf("%d", i)] = entry(t, questShow)
	}

	out, err := index.Build(snap, "big", tuning.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	note := "_15 interactive items total. Showing 10 player-triggered items. 5 quest-driven items omitted (use the query tool for details)._"
	if !strings.Contains(out, note) {
		t.Fatalf("missing narrowing note in:\n%s", out)
	}
	if strings.Contains(out, "Quest(FindKey)") {
		t.Fatal("quest-driven rows should be omitted in a large room")
	}
}

func TestSmallRoomShowsQuestDrivenRows(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Items["1"] = item("ResizableCube", 0, 0, 0)
	snap.Logic["1"] = entry(t, questShow)

	out, err := index.Build(snap, "small", tuning.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "Quest(FindKey)") {
		t.Fatalf("quest-driven row missing:\n%s", out)
	}
}

func TestSpatialRowMajorOrder(t *testing.T) {
	snap := room.NewSnapshot()
	snap.Items["1"] = item("ResizableCube", 30, 0, -30) // SE
	snap.Items["2"] = item("ResizableCube", -30, 0, -30) // SW
	snap.Items["3"] = item("ResizableCube", 5, 0, 5)    // Center
	snap.Items["4"] = item("ResizableCube", -30, 0, 30) // NW

	out, err := index.Build(snap, "zones", tuning.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Rows order by grid z then grid x.
	order := []string{"SW (-40, -40)", "SE (20, -40)", "Center (0, 0)", "NW (-40, 20)"}
	last := -1
	for _, zone := range order {
		i := strings.Index(out, zone)
		if i < 0 {
			t.Fatalf("zone %q missing:\n%s", zone, out)
		}
		if i < last {
			t.Fatalf("zone %q out of order", zone)
		}
		last = i
	}
}

func TestQuestGroupingOverLimit(t *testing.T) {
	snap := room.NewSnapshot()
	pol := tuning.Default()
	pol.QuestRowLimit = 3
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("mlhgroup%07d", i)
		snap.Quests[id] = room.Quest{
			"id": id, "EntryId": fmt.Sprintf("e%d", i),
			"Name": fmt.Sprintf("%d_Collect_Gem%d", i, i), "Status": room.QuestNotStarted,
		}
	}

	out, err := index.Build(snap, "grouped", pol)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "_5 unique quests (5 total entries). Showing grouped summary._") {
		t.Fatalf("grouped summary missing:\n%s", out)
	}
	if !strings.Contains(out, "| Collect | 5 |") {
		t.Fatalf("group row missing:\n%s", out)
	}
}
