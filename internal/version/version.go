package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/scality/sproxydclient/theme"
)

var (
	Name        = "sproxydclient"
	Authors     = "Scality"
	Description = "Routing-aware client for HTTP object storage endpoints"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/scality/sproxydclient"
	GithubHomeUri   = "https://github.com/scality/sproxydclient"
	GithubLatestUri = "https://github.com/scality/sproxydclient/releases/latest"
)

// PrintVersionInfo writes a styled splash banner to vlog at startup.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)
	padLatest := fmt.Sprintf("%*s", 1-len(Version), "")
	padBuffer := fmt.Sprintf("%*s", 2, "")

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔────────────────────────────────────────────────────────╗
│  ███████╗██████╗ ██████╗  ██████╗ ██╗  ██╗██╗   ██╗██████╗ │
│  ██╔════╝██╔══██╗██╔══██╗██╔═══██╗╚██╗██╔╝██║   ██║██╔══██╗│
│  ███████╗██████╔╝██████╔╝██║   ██║ ╚███╔╝ ██║   ██║██║  ██║│
│  ╚════██║██╔═══╝ ██╔══██╗██║   ██║ ██╔██╗ ╚██╗ ██╔╝██║  ██║│
│  ███████║██║     ██║  ██║╚██████╔╝██╔╝ ██╗ ╚████╔╝ ██████╔╝│
│  ╚══════╝╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═╝  ╚═══╝  ╚═════╝ │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(padLatest)
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(padBuffer)
	b.WriteString(theme.ColourSplash(" │\n"))
	b.WriteString(theme.ColourSplash("╚────────────────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
