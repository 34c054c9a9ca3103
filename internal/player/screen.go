package player

import (
	"fmt"
	"io"
	"strings"

	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/session"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"

	clearScreen    = "\033[H\033[2J"
	altScreenOn    = "\033[?1049h"
	altScreenOff   = "\033[?1049l"
	focusReportOn  = "\033[?1004h"
	focusReportOff = "\033[?1004l"

	checkMark = "✅"
	crossMark = "❌"
)

// Rules is shown before the participant accepts.
var Rules = []string{
	"Do not leave this window or switch to another application.",
	"Hiding the window a second time ends your attempt.",
	"Screenshots and printing are blocked; trying them pauses the exam.",
	"Each section may be timed; when time runs out you move on automatically.",
	"You can submit only once from this device.",
}

// prompt is the UI-local state drawn on top of the controller view.
type prompt struct {
	cursor     int
	jumping    bool
	jumpBuf    string
	status     string
	statusTone string
	blocked    bool
	confirming bool
}

func colorize(s, color string) string {
	return color + s + colorReset
}

// line writes s followed by CRLF; raw mode does not translate \n.
func line(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format+"\r\n", args...)
}

func renderRules(w io.Writer, title string) {
	io.WriteString(w, clearScreen)
	line(w, colorize(title, colorBold+colorCyan))
	line(w, strings.Repeat("-", len(title)))
	for i, r := range Rules {
		line(w, "%d. %s", i+1, r)
	}
	line(w, "")
	line(w, colorize("Press y to accept the rules and start, or q to quit.", colorYellow))
}

func renderView(w io.Writer, v session.View, questions []model.Question, p prompt) {
	io.WriteString(w, clearScreen)

	title := v.Title
	if title == "" {
		title = "Quiz " + v.QuizID
	}
	line(w, colorize(title, colorBold+colorCyan))
	line(w, "%s", statusLine(v))
	line(w, "")

	switch v.State.Kind {
	case session.Completed:
		renderResult(w, v, questions)
		return
	case session.Terminated:
		line(w, colorize("Your attempt has ended (%s).", colorRed), v.State.Reason)
		line(w, "")
		line(w, "Press q to exit.")
		return
	case session.Submitting:
		line(w, colorize("Submitting your answers...", colorYellow))
		return
	}

	if p.confirming {
		line(w, colorize("You left the exam window. Stay in the exam? [y/n]", colorBold+colorRed))
		return
	}
	if p.blocked {
		line(w, colorize("Exam paused: restricted key combination detected.", colorBold+colorRed))
		line(w, "")
	}

	answers := make(map[int]string, len(v.Answers))
	for _, a := range v.Answers {
		answers[a.Index] = a.Text
	}

	for i := v.SectionStart; i < v.SectionEnd && i < len(questions); i++ {
		q := questions[i]
		marker := "  "
		if i == p.cursor {
			marker = colorize("> ", colorYellow)
		}
		line(w, "%s%s", marker, colorize(fmt.Sprintf("Q%d. %s", i+1, q.Prompt), colorBold))
		for n, opt := range q.Options {
			box := "[ ]"
			if sel, ok := answers[i]; ok && sel == opt.Text {
				box = colorize("[x]", colorGreen)
			}
			line(w, "      %s %d) %s", box, n+1, opt.Text)
		}
		line(w, "")
	}

	if v.State.Kind == session.ConfirmPending {
		line(w, colorize("All sections visited. Press s to submit or c to go back.", colorBold+colorYellow))
	} else {
		line(w, colorize("↑/↓ question  1-4 answer  n next  N force next  p previous  j jump  s submit  q quit", colorYellow))
	}
	if p.jumping {
		line(w, "Jump to question: %s_", p.jumpBuf)
	}
	if p.status != "" {
		line(w, "%s", colorize(p.status, p.statusTone))
	}
}

func statusLine(v session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section %d/%d", v.State.Section+1, max(v.SectionCount, 1))
	fmt.Fprintf(&b, "  Answered %d/%d", v.Answered, v.Total)
	if v.SectionRemaining != nil {
		fmt.Fprintf(&b, "  Section time %s", clock(*v.SectionRemaining))
	}
	if v.AccessRemaining != nil {
		fmt.Fprintf(&b, "  Time left %s", clock(*v.AccessRemaining))
	}
	if v.Infractions > 0 {
		b.WriteString("  " + colorize(fmt.Sprintf("Warnings %d", v.Infractions), colorRed))
	}
	return b.String()
}

func renderResult(w io.Writer, v session.View, questions []model.Question) {
	line(w, colorize("Submitted. Thank you!", colorBold+colorGreen))
	if v.Result == nil || !v.Result.Revealed {
		line(w, "")
		line(w, "Press q to exit.")
		return
	}
	line(w, "Score: %d / %d", v.Result.Score, v.Result.OutOf)
	line(w, "")
	for _, rv := range v.Result.Review {
		mark := crossMark
		if rv.Correct {
			mark = checkMark
		}
		text := ""
		if rv.Index < len(questions) {
			text = questions[rv.Index].Prompt
		}
		line(w, "%s Q%d. %s", mark, rv.Index+1, text)
		if !rv.Correct && rv.Resolved {
			line(w, "     answer: %s", rv.CorrectText)
		}
	}
	line(w, "")
	line(w, "Press q to exit.")
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
