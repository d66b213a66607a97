// Command clickflow is a terminal harness for the click-to-parcel
// workflow: it wires a stub scene, the lookup and entity-store clients,
// and a console renderer around one workflow instance.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/core/config"
	"github.com/agrimap/parcel-onboarding/internal/core/httpclient"
	"github.com/agrimap/parcel-onboarding/internal/geocode"
	"github.com/agrimap/parcel-onboarding/internal/geom"
	"github.com/agrimap/parcel-onboarding/internal/logger"
	"github.com/agrimap/parcel-onboarding/internal/parcels"
	"github.com/agrimap/parcel-onboarding/internal/present"
	"github.com/agrimap/parcel-onboarding/internal/scene"
	"github.com/agrimap/parcel-onboarding/internal/workflow"
)

var Version = "dev"

// consoleScene maps screen clicks straight onto lon/lat. The harness
// feeds coordinates as "screen" positions, so X is longitude and Y is
// latitude.
type consoleScene struct{}

func (consoleScene) PickAt(c scene.ScreenClick) scene.PickResult {
	coord := geom.Coordinate{Lon: c.X, Lat: c.Y}
	if !coord.Valid() {
		return scene.PickResult{}
	}
	return scene.PickResult{Ground: &coord}
}

func (consoleScene) FlyTo(b scene.BoundingBox) {
	fmt.Printf("  → camera to [%.4f..%.4f, %.4f..%.4f]\n", b.West, b.East, b.South, b.North)
}

func (consoleScene) ReloadEntities() {
	fmt.Println("  → entity layer reloaded")
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Component: "clickflow",
	}, os.Stderr)
	appLog := logger.NewSlog(&zl)

	httpClient := httpclient.NewOutbound()

	lookupClient, err := cadastral.NewClient(appLog, httpClient, cfg.LookupURL)
	if err != nil {
		appLog.Error("lookup client setup failed", "err", err)
		return 1
	}
	creator, err := parcels.NewClient(appLog, httpClient, cfg.EntityStoreURL)
	if err != nil {
		appLog.Error("entity-store client setup failed", "err", err)
		return 1
	}
	searcher, err := geocode.NewClient(appLog, httpClient, geocode.Config{
		BaseURL:     cfg.Geocode.BaseURL,
		CountryCode: cfg.Geocode.Country,
		Limit:       cfg.Geocode.Limit,
	})
	if err != nil {
		appLog.Error("geocode client setup failed", "err", err)
		return 1
	}

	scn := consoleScene{}
	toggle := workflow.NewToggleStore(cfg.ClickEnabled)
	wf := workflow.New(workflow.Config{
		Scene:   scn,
		Lookup:  lookupClient,
		Creator: creator,
		Toggle:  toggle,
		Logger:  appLog,
	})
	defer wf.Close()

	renderer := present.NewRenderer(os.Stdout)
	unsubscribe := wf.Subscribe(renderer.Render)
	defer unsubscribe()

	bar := present.NewSearchBar(appLog, searcher, scn, nil)

	fmt.Printf("clickflow %s — lookup %s, store %s\n", Version, cfg.LookupURL, cfg.EntityStoreURL)
	fmt.Println("commands: click <lon> <lat> | select <n> | confirm | cancel | search <text> | up | down | enter | esc | toggle | quit")

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if quit := dispatch(sc.Text(), wf, bar, toggle); quit {
			return 0
		}
	}
	return 0
}

func dispatch(line string, wf *workflow.Workflow, bar *present.SearchBar, toggle *workflow.ToggleStore) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "click":
		if len(fields) != 3 {
			fmt.Println("usage: click <lon> <lat>")
			return false
		}
		lon, err1 := strconv.ParseFloat(fields[1], 64)
		lat, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			fmt.Println("usage: click <lon> <lat>")
			return false
		}
		if !wf.HandleClick(scene.ScreenClick{X: lon, Y: lat}) {
			fmt.Println("  click ignored")
		}

	case "select":
		if len(fields) != 2 {
			fmt.Println("usage: select <n>")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || !wf.SelectCandidate(n-1) {
			fmt.Println("  nothing to select")
		}

	case "confirm":
		if !wf.Confirm() {
			fmt.Println("  nothing to confirm")
		}
	case "cancel":
		if !wf.Cancel() {
			fmt.Println("  nothing to cancel")
		}

	case "search":
		bar.SetQuery(context.Background(), strings.Join(fields[1:], " "))
	case "up":
		bar.HandleKey(present.KeyArrowUp)
		printBar(bar)
	case "down":
		bar.HandleKey(present.KeyArrowDown)
		printBar(bar)
	case "enter":
		bar.HandleKey(present.KeyEnter)
	case "esc":
		bar.HandleKey(present.KeyEscape)

	case "toggle":
		toggle.Set(!toggle.Enabled())
		fmt.Printf("  click-to-create enabled: %v\n", toggle.Enabled())

	default:
		fmt.Printf("  unknown command %q\n", fields[0])
	}
	return false
}

func printBar(bar *present.SearchBar) {
	v := bar.View()
	for i, p := range v.Results {
		mark := "  "
		if i == v.Highlight {
			mark = "> "
		}
		fmt.Printf("  %s%s\n", mark, p.DisplayName)
	}
}
