package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"roomdex/internal/archive"
	"roomdex/internal/ops"
	"roomdex/internal/query"
	"roomdex/internal/room"
	"roomdex/internal/roomdb"
	"roomdex/internal/tuning"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "index":
		indexCmd(os.Args[2:])
	case "query":
		queryCmd(os.Args[2:])
	case "merge":
		mergeCmd(os.Args[2:])
	case "validate":
		validateCmd(os.Args[2:])
	case "history":
		historyCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: roomdex <index|query|merge|validate|history> [flags]")
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	room   *string
	dbPath *string
	tunes  *string
	audit  *string
}

func addCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		room:   fs.String("room", ".", "room directory (contains snapshot.json)"),
		dbPath: fs.String("db", "", "sqlite history db path (optional)"),
		tunes:  fs.String("tuning", "", "tuning overrides yaml (optional)"),
		audit:  fs.String("audit", "", "audit log directory (optional)"),
	}
}

func newService(cf commonFlags) (*ops.Service, func()) {
	pol := tuning.Default()
	if *cf.tunes != "" {
		p, err := tuning.Load(*cf.tunes)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tuning:", err)
			os.Exit(1)
		}
		pol = p
	}
	svc := ops.New(pol)
	closers := []func(){}
	if *cf.dbPath != "" {
		db, err := roomdb.Open(*cf.dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "db:", err)
			os.Exit(1)
		}
		svc.DB = db
		closers = append(closers, func() { _ = db.Close() })
	}
	if *cf.audit != "" {
		al := archive.NewAuditLogger(*cf.audit)
		svc.Audit = al
		closers = append(closers, func() { _ = al.Close() })
	}
	return svc, func() {
		for _, c := range closers {
			c()
		}
	}
}

func indexCmd(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	cf := addCommon(fs)
	_ = fs.Parse(args)

	svc, done := newService(cf)
	defer done()

	res, err := svc.Index(*cf.room)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes, %d items, %d quests)\n", res.Path, res.Bytes, res.Items, res.Quests)
}

func queryCmd(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	cf := addCommon(fs)
	ids := fs.String("ids", "", "comma-separated item ids")
	types := fs.String("types", "", "comma-separated prefab types")
	near := fs.String("near", "", "center position x,y,z (requires -radius)")
	radius := fs.Float64("radius", -1, "radius around -near")
	hasTriggers := fs.Bool("has-triggers", false, "only items with triggers")
	hasEffects := fs.Bool("has-effects", false, "only items with effects")
	quest := fs.String("quest", "", "quest name substring")
	parent := fs.String("parent", "", "parent item id")
	search := fs.String("search", "", "free-text substring over item fields")
	_ = fs.Parse(args)

	f := query.Filters{
		HasTriggers: *hasTriggers,
		HasEffects:  *hasEffects,
		Quest:       *quest,
		Parent:      *parent,
		Search:      *search,
	}
	if *ids != "" {
		f.IDs = splitList(*ids)
	}
	if *types != "" {
		f.Types = splitList(*types)
	}
	if *near != "" {
		c, err := parseVec3(*near)
		if err != nil {
			fmt.Fprintln(os.Stderr, "near:", err)
			os.Exit(2)
		}
		f.Center = &c
	}
	if *radius >= 0 {
		f.Radius = radius
	}

	svc, done := newService(cf)
	defer done()

	res, err := svc.Query(*cf.room, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printJSON(res)
}

func mergeCmd(args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	cf := addCommon(fs)
	patchPath := fs.String("patch", "", "patch json path (required, or - for stdin)")
	dryRun := fs.Bool("dry-run", false, "validate and report without writing")
	_ = fs.Parse(args)

	if strings.TrimSpace(*patchPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -patch")
		os.Exit(2)
	}
	var raw []byte
	var err error
	if *patchPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*patchPath)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "patch:", err)
		os.Exit(1)
	}

	svc, done := newService(cf)
	defer done()

	res, err := svc.Merge(*cf.room, raw, *dryRun)
	if err != nil {
		fmt.Fprintln(os.Stderr, "merge:", err)
		os.Exit(1)
	}
	printJSON(res)
	if len(res.Errors) > 0 {
		os.Exit(1)
	}
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cf := addCommon(fs)
	_ = fs.Parse(args)

	svc, done := newService(cf)
	defer done()

	res, err := svc.Validate(*cf.room)
	if err != nil {
		fmt.Fprintln(os.Stderr, "validate:", err)
		os.Exit(1)
	}
	printJSON(res)
	if len(res.Errors) > 0 {
		os.Exit(1)
	}
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cf := addCommon(fs)
	limit := fs.Int("limit", 20, "max rows")
	_ = fs.Parse(args)

	if *cf.dbPath == "" {
		fmt.Fprintln(os.Stderr, "missing -db")
		os.Exit(2)
	}

	svc, done := newService(cf)
	defer done()

	recs, err := svc.History(*cf.room, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "history:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		fmt.Printf("%s  %s  dry_run=%t applied=%t  %s\n", r.At, r.ID, r.DryRun, r.Applied, r.Summary)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseVec3(s string) (room.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return room.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return room.Vec3{}, fmt.Errorf("bad coordinate %q", p)
		}
		v[i] = f
	}
	return room.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
