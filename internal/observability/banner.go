package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
	colorPurple   = "\033[35m"
)

const logo = `
                __  __                  __      __
   ____  ____ _/ /_/ /____  _________  / /___ _/ /_
  / __ \/ __ '/ __/ __/ _ \/ ___/ __ \/ / __ '/ __ \
 / /_/ / /_/ / /_/ /_/  __/ /  / / / / / /_/ / /_/ /
/ .___/\__,_/\__/\__/\___/_/  /_/ /_/_/\__,_/_.___/
/_/
`

// termWidth reports the width of w when it is a terminal, 0 otherwise.
func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return width
}

// PrintBanner writes the startup banner with the listen address and routes.
// Centering and color only apply on a terminal.
func PrintBanner(w io.Writer, name, addr string, routes []string) {
	width := termWidth(w)
	color, reset := "", ""
	if width > 0 {
		color, reset = colorNeonCyan, colorReset
	}

	for _, l := range strings.Split(logo, "\n") {
		padding := 0
		if width > len(l) {
			padding = (width - len(l)) / 2
		}
		fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), color, l, reset)
	}

	fmt.Fprintf(w, "%s >> %s listening on %s%s\n", color, name, addr, reset)
	for _, r := range routes {
		if width > 0 {
			fmt.Fprintf(w, "    %s%s%s\n", colorPurple, r, colorReset)
			continue
		}
		fmt.Fprintf(w, "    %s\n", r)
	}
}
