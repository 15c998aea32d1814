package query_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"roomdex/internal/protocol"
	"roomdex/internal/query"
	"roomdex/internal/room"
	"roomdex/internal/tuning"
)

func testSnapshot(t *testing.T) *room.Snapshot {
	t.Helper()
	snap := room.NewSnapshot()
	snap.Items["1"] = room.Item{
		"prefabName": "SpawnPoint",
		"pos":        map[string]any{"x": 0.0, "y": 0.0, "z": 0.0},
	}
	snap.Items["2"] = room.Item{
		"prefabName": "ResizableCube",
		"pos":        map[string]any{"x": 3.0, "y": 0.0, "z": 4.0},
	}
	snap.Items["3"] = room.Item{
		"prefabName":   "WorldText",
		"t":            "Welcome adventurer",
		"pos":          map[string]any{"x": 100.0, "y": 0.0, "z": 100.0},
		"parentItemID": "2",
	}
	snap.Logic["2"] = logicEntry(t, `{"Tasks":[{"$type":"TaskTriggerSubscription",`+
		`"Trigger":{"$type":"OnClickEvent"},`+
		`"DirectEffector":{"Effector":{"$type":"TeleportEvent"}}}]}`)
	snap.Logic["3"] = logicEntry(t, `{"Tasks":[{"$type":"TaskTriggerSubscription",`+
		`"TaskTriggerId":"mlhqst0000000001","TargetState":111,`+
		`"Trigger":{"$type":"OnEnterEvent"}}]}`)
	snap.Quests["mlhqst0000000001"] = room.Quest{
		"id": "mlhqst0000000001", "EntryId": "e1", "Name": "1_FindKey", "Status": room.QuestInProgress,
	}
	return snap
}

func logicEntry(t *testing.T, raw string) *room.LogicEntry {
	t.Helper()
	var e room.LogicEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	return &e
}

func ids(res *query.Result) []string {
	out := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		out = append(out, m.ID)
	}
	return out
}

func TestSpatialFilter(t *testing.T) {
	snap := testSnapshot(t)
	r := 10.0
	res, err := query.Run(snap, query.Filters{
		Center: &room.Vec3{X: 0, Y: 0, Z: 0},
		Radius: &r,
	}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := ids(res)
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("matches = %v", got)
	}
}

func TestSpatialFilterNeedsBothParts(t *testing.T) {
	snap := testSnapshot(t)
	_, err := query.Run(snap, query.Filters{Center: &room.Vec3{}}, tuning.Default())
	if err == nil {
		t.Fatal("center without radius should error")
	}
	issues := protocol.AsIssues(err)
	if issues[0].Code != protocol.ErrSchema {
		t.Fatalf("code = %s", issues[0].Code)
	}

	r := 5.0
	if _, err := query.Run(snap, query.Filters{Radius: &r}, tuning.Default()); err == nil {
		t.Fatal("radius without center should error")
	}

	neg := -1.0
	_, err = query.Run(snap, query.Filters{Center: &room.Vec3{}, Radius: &neg}, tuning.Default())
	if err == nil {
		t.Fatal("negative radius should error")
	}
}

func TestFiltersCombineWithAND(t *testing.T) {
	snap := testSnapshot(t)
	r := 10.0
	res, err := query.Run(snap, query.Filters{
		Center:      &room.Vec3{},
		Radius:      &r,
		HasTriggers: true,
	}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := ids(res)
	if len(got) != 1 || got[0] != "2" {
		t.Fatalf("matches = %v", got)
	}
}

func TestTypeAndRadiusTogether(t *testing.T) {
	snap := room.NewSnapshot()
	near := []float64{1, 2, 3}
	far := []float64{50, 80}
	for i, x := range near {
		snap.Items[fmt.Sprintf("%d", i+1)] = room.Item{
			"prefabName": "GlbCollectable",
			"pos":        map[string]any{"x": x, "y": 0.0, "z": 0.0},
		}
	}
	for i, x := range far {
		snap.Items[fmt.Sprintf("%d", i+10)] = room.Item{
			"prefabName": "GlbCollectable",
			"pos":        map[string]any{"x": x, "y": 0.0, "z": 0.0},
		}
	}
	// A nearby item of another type must not match either.
	snap.Items["20"] = room.Item{
		"prefabName": "ResizableCube",
		"pos":        map[string]any{"x": 0.0, "y": 0.0, "z": 0.0},
	}

	r := 5.0
	res, err := query.Run(snap, query.Filters{
		Types:  []string{"GlbCollectable"},
		Center: &room.Vec3{},
		Radius: &r,
	}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := ids(res); len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("matches = %v", got)
	}
}

func TestUnknownTypeMatchesNothing(t *testing.T) {
	snap := testSnapshot(t)
	res, err := query.Run(snap, query.Filters{Types: []string{"NoSuchPrefab"}}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Fatalf("matches = %v", ids(res))
	}
}

func TestQuestFilter(t *testing.T) {
	snap := testSnapshot(t)
	res, err := query.Run(snap, query.Filters{Quest: "findkey"}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := ids(res)
	if len(got) != 1 || got[0] != "3" {
		t.Fatalf("matches = %v", got)
	}
}

func TestParentAndSearchFilters(t *testing.T) {
	snap := testSnapshot(t)

	res, err := query.Run(snap, query.Filters{Parent: "2"}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "3" {
		t.Fatalf("parent matches = %v", got)
	}

	res, err = query.Run(snap, query.Filters{Search: "ADVENTURER"}, tuning.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "3" {
		t.Fatalf("search matches = %v", got)
	}
}

func TestCardinalityWarning(t *testing.T) {
	snap := room.NewSnapshot()
	for i := 1; i <= 10; i++ {
		snap.Items[fmt.Sprintf("%d", i)] = room.Item{"prefabName": "ResizableCube"}
	}
	pol := tuning.Default()
	pol.QueryWarnLimit = 5

	res, err := query.Run(snap, query.Filters{}, pol)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Warning == nil || res.Warning.Code != protocol.WarnCardinality {
		t.Fatalf("warning = %v", res.Warning)
	}
	if len(res.Matches) != 10 {
		t.Fatalf("matches = %d", len(res.Matches))
	}

	// Results come back anyway, in ascending id order.
	for i, m := range res.Matches {
		if m.ID != fmt.Sprintf("%d", i+1) {
			t.Fatalf("order broken at %d: %s", i, m.ID)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := query.Describe(query.Filters{}); got != "all items" {
		t.Fatalf("empty filters = %q", got)
	}
	r := 5.0
	f := query.Filters{
		Types:  []string{"ResizableCube"},
		Center: &room.Vec3{X: 1, Y: 2, Z: 3},
		Radius: &r,
		Quest:  "FindKey",
	}
	got := query.Describe(f)
	want := "types=ResizableCube near=(1,2,3) r=5 quest=FindKey"
	if got != want {
		t.Fatalf("describe = %q, want %q", got, want)
	}
}
