package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sorayoru/reliquary/internal/api"
	"github.com/sorayoru/reliquary/internal/appclient"
	"github.com/sorayoru/reliquary/internal/config"
	"github.com/sorayoru/reliquary/internal/gamedb"
	"github.com/sorayoru/reliquary/internal/model"
)

type Runner struct {
	client *appclient.Client
	out    io.Writer
	errOut io.Writer
}

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	return NewRunnerWithClient(appclient.New(socketPath), out, errOut)
}

func NewRunnerWithClient(client *appclient.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{client: client, out: out, errOut: errOut}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" {
		r.client = appclient.New(socketPath)
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "health":
		return r.runHealth(ctx, rest[1:])
	case "status":
		return r.runStatus(ctx, rest[1:])
	case "start":
		return r.runStart(ctx, rest[1:])
	case "stop":
		return r.runStop(ctx, rest[1:])
	case "export":
		return r.runExport(ctx, rest[1:])
	case "achievements":
		return r.runAchievements(ctx, rest[1:])
	case "log":
		return r.runLog(ctx, rest[1:])
	case "import-data":
		return r.runImportData(ctx, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func (r *Runner) runHealth(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.Health(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, resp.Status)
	return 0
}

func (r *Runner) runStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.Status(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	r.printStatus(resp)
	return 0
}

func (r *Runner) runStart(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.StartCapture(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	r.printStatus(resp)
	return 0
}

func (r *Runner) runStop(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.StopCapture(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	r.printStatus(resp)
	return 0
}

func (r *Runner) runExport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	outPath := fs.String("out", "", "write document to file instead of stdout")
	noCharacters := fs.Bool("no-characters", false, "exclude characters")
	noArtifacts := fs.Bool("no-artifacts", false, "exclude artifacts")
	noWeapons := fs.Bool("no-weapons", false, "exclude weapons")
	noMaterials := fs.Bool("no-materials", false, "exclude materials")
	defaults := model.DefaultExportSettings()
	minCharLevel := fs.Uint("min-character-level", uint(defaults.MinCharacterLevel), "minimum character level")
	minCharAscension := fs.Uint("min-character-ascension", uint(defaults.MinCharacterAscension), "minimum character ascension")
	minCharConstellation := fs.Uint("min-character-constellation", uint(defaults.MinCharacterConstellation), "minimum character constellation")
	minArtLevel := fs.Uint("min-artifact-level", uint(defaults.MinArtifactLevel), "minimum artifact level")
	minArtRarity := fs.Uint("min-artifact-rarity", uint(defaults.MinArtifactRarity), "minimum artifact rarity")
	minWeapLevel := fs.Uint("min-weapon-level", uint(defaults.MinWeaponLevel), "minimum weapon level")
	minWeapRefinement := fs.Uint("min-weapon-refinement", uint(defaults.MinWeaponRefinement), "minimum weapon refinement")
	minWeapAscension := fs.Uint("min-weapon-ascension", uint(defaults.MinWeaponAscension), "minimum weapon ascension")
	minWeapRarity := fs.Uint("min-weapon-rarity", uint(defaults.MinWeaponRarity), "minimum weapon rarity")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}

	req := api.ExportRequest{
		MinCharacterLevel:         uint32Ptr(uint32(*minCharLevel)),
		MinCharacterAscension:     uint32Ptr(uint32(*minCharAscension)),
		MinCharacterConstellation: uint32Ptr(uint32(*minCharConstellation)),
		MinArtifactLevel:          uint32Ptr(uint32(*minArtLevel)),
		MinArtifactRarity:         uint32Ptr(uint32(*minArtRarity)),
		MinWeaponLevel:            uint32Ptr(uint32(*minWeapLevel)),
		MinWeaponRefinement:       uint32Ptr(uint32(*minWeapRefinement)),
		MinWeaponAscension:        uint32Ptr(uint32(*minWeapAscension)),
		MinWeaponRarity:           uint32Ptr(uint32(*minWeapRarity)),
	}
	if *noCharacters {
		req.IncludeCharacters = boolPtr(false)
	}
	if *noArtifacts {
		req.IncludeArtifacts = boolPtr(false)
	}
	if *noWeapons {
		req.IncludeWeapons = boolPtr(false)
	}
	if *noMaterials {
		req.IncludeMaterials = boolPtr(false)
	}

	resp, err := r.client.Export(ctx, req)
	if err != nil {
		return r.handleErr(err)
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, resp.Document, 0o644); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "wrote %s\n", *outPath)
		return 0
	}
	_, _ = r.out.Write(resp.Document)
	_, _ = fmt.Fprintln(r.out)
	return 0
}

func (r *Runner) runAchievements(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("achievements", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.Achievements(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	_, _ = fmt.Fprintf(r.out, "finished %d of %d\n", resp.Summary.Finished, resp.Summary.Total)
	for _, a := range resp.Achievements {
		state := "in-progress"
		if a.Status >= model.AchievementStatusFinished {
			state = "finished"
		}
		_, _ = fmt.Fprintf(r.out, "%d\t%s\t%d/%d\n", a.ID, state, a.CurrentProgress, a.TotalProgress)
	}
	return 0
}

func (r *Runner) runLog(ctx context.Context, args []string) int {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		_, _ = fmt.Fprintln(r.errOut, "usage: reliquary log <on|off>")
		return 2
	}
	resp, err := r.client.SetPacketLogging(ctx, args[0] == "on")
	if err != nil {
		return r.handleErr(err)
	}
	state := "disabled"
	if resp.Enabled {
		state = "enabled"
	}
	_, _ = fmt.Fprintf(r.out, "packet logging %s\n", state)
	return 0
}

func (r *Runner) runImportData(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("import-data", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dbPath := fs.String("db", config.DefaultConfig().DBPath, "game database path")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(r.errOut, "usage: reliquary import-data [--db <path>] <dump.json>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return r.handleErr(err)
	}
	defer f.Close() //nolint:errcheck

	store, err := gamedb.Open(ctx, *dbPath)
	if err != nil {
		return r.handleErr(err)
	}
	defer store.Close() //nolint:errcheck
	if err := gamedb.ApplyMigrations(ctx, store.DB()); err != nil {
		return r.handleErr(err)
	}
	if err := store.ImportJSON(ctx, f); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "imported %s\n", fs.Arg(0))
	return 0
}

func (r *Runner) printStatus(resp api.StatusEnvelope) {
	_, _ = fmt.Fprintf(r.out, "state: %s\n", resp.State)
	_, _ = fmt.Fprintf(r.out, "capturing: %t\n", resp.Capturing)
	_, _ = fmt.Fprintf(r.out, "items: %s\n", formatSeen(resp.Updated.Items))
	_, _ = fmt.Fprintf(r.out, "characters: %s\n", formatSeen(resp.Updated.Characters))
	_, _ = fmt.Fprintf(r.out, "achievements: %s\n", formatSeen(resp.Updated.Achievements))
}

func (r *Runner) printJSON(payload any) int {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return r.handleErr(err)
	}
	_, _ = r.out.Write(data)
	_, _ = fmt.Fprintln(r.out)
	return 0
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: reliquary [--socket <path>] <health|status|start|stop|export|achievements|log|import-data> ...")
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socket := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--socket" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires value")
			}
			socket = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return socket, rest, nil
}

func formatSeen(ts *time.Time) string {
	if ts == nil {
		return "never"
	}
	return ts.Local().Format(time.RFC3339)
}

func boolPtr(v bool) *bool { return &v }

func uint32Ptr(v uint32) *uint32 { return &v }
