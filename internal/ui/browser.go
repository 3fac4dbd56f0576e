// Package ui is a read-only terminal browser over the attack-chain
// timeline: chains on the left, their events in the middle, and the
// selected event's detail and annotations on the right. Mutations go
// through the HTTP API or the CLI; the browser only looks.
package ui

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/chainsmoker-project/chainsmoker/internal/service"
	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

const unchainedLabel = "(no chain)"

// UI is the terminal browser.
type UI struct {
	app    *tview.Application
	svc    *service.Service
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	chainList *tview.List
	eventList *tview.Table
	detail    *tview.TextView
	status    *tview.TextView
	layout    *tview.Flex

	events []store.Event
	chains []string
	// events of the currently selected chain, in plot order
	chainEvents []store.Event
}

// NewUI creates the browser over a service.
func NewUI(ctx context.Context, svc *service.Service, logger *log.Logger) *UI {
	if logger == nil {
		logger = log.New(log.Writer(), "[browse] ", log.LstdFlags)
	}
	uiCtx, cancel := context.WithCancel(ctx)

	ui := &UI{
		app:    tview.NewApplication(),
		svc:    svc,
		logger: logger,
		ctx:    uiCtx,
		cancel: cancel,
	}
	ui.setupLayout()
	ui.setupKeybindings()
	return ui
}

func (ui *UI) setupLayout() {
	ui.chainList = tview.NewList().ShowSecondaryText(true)
	ui.chainList.SetBorder(true).SetTitle(" Attack Chains ")
	ui.chainList.SetChangedFunc(func(index int, _, _ string, _ rune) {
		ui.showChain(index)
	})

	ui.eventList = tview.NewTable().SetSelectable(true, false)
	ui.eventList.SetBorder(true).SetTitle(" Events ")
	ui.eventList.SetSelectionChangedFunc(func(row, _ int) {
		ui.showEvent(row - 1) // row 0 is the header
	})

	ui.detail = tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	ui.detail.SetBorder(true).SetTitle(" Detail ")

	ui.status = tview.NewTextView().SetDynamicColors(true)
	ui.status.SetText("[gray]Tab: switch panel  r: reload  q: quit")

	main := tview.NewFlex().
		AddItem(ui.chainList, 0, 1, true).
		AddItem(ui.eventList, 0, 2, false).
		AddItem(ui.detail, 0, 2, false)

	ui.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(main, 0, 1, true).
		AddItem(ui.status, 1, 0, false)
}

func (ui *UI) setupKeybindings() {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyTab:
			ui.cycleFocus()
			return nil
		case event.Rune() == 'q':
			ui.Stop()
			return nil
		case event.Rune() == 'r':
			go ui.reload()
			return nil
		}
		return event
	})
}

func (ui *UI) cycleFocus() {
	switch {
	case ui.chainList.HasFocus():
		ui.app.SetFocus(ui.eventList)
	case ui.eventList.HasFocus():
		ui.app.SetFocus(ui.detail)
	default:
		ui.app.SetFocus(ui.chainList)
	}
}

// Start runs the browser until the context ends or the user quits.
func (ui *UI) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ui.app.Stop()
	}()
	go ui.reload()

	ui.app.SetRoot(ui.layout, true)
	return ui.app.Run()
}

// Stop tears the browser down.
func (ui *UI) Stop() {
	ui.cancel()
	ui.app.Stop()
}

// reload pulls the event collection and repopulates every panel.
func (ui *UI) reload() {
	events, err := ui.svc.ListEvents(ui.ctx)
	if err != nil {
		ui.logger.Printf("reload failed: %v", err)
		ui.app.QueueUpdateDraw(func() {
			ui.status.SetText(fmt.Sprintf("[red]Reload failed: %v", err))
		})
		return
	}

	ui.app.QueueUpdateDraw(func() {
		ui.events = events
		ui.chains = chainOrder(events)
		ui.chainList.Clear()
		for _, chain := range ui.chains {
			count := 0
			for _, ev := range events {
				if chainLabel(ev) == chain {
					count++
				}
			}
			ui.chainList.AddItem(chain, fmt.Sprintf("%d events", count), 0, nil)
		}
		figs := ui.svc.TimelineFigures()
		ui.status.SetText(fmt.Sprintf("[gray]%d events  %d chains  tactics %d/%d  |  Tab: switch panel  r: reload  q: quit",
			len(events), len(ui.chains), len(figs.Visible), len(figs.All)))
		if len(ui.chains) > 0 {
			ui.showChain(0)
		} else {
			ui.eventList.Clear()
			ui.detail.SetText("[gray]No events recorded yet.")
		}
	})
}

// showChain fills the event table with the chain at the given index.
func (ui *UI) showChain(index int) {
	if index < 0 || index >= len(ui.chains) {
		return
	}
	chain := ui.chains[index]
	ui.chainEvents = ui.chainEvents[:0]
	for _, ev := range ui.events {
		if chainLabel(ev) == chain {
			ui.chainEvents = append(ui.chainEvents, ev)
		}
	}

	ui.eventList.Clear()
	for col, header := range []string{"Time", "Tactic", "Source", "Target"} {
		ui.eventList.SetCell(0, col, tview.NewTableCell(header).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	for i, ev := range ui.chainEvents {
		for col, text := range eventRow(ev) {
			ui.eventList.SetCell(i+1, col, tview.NewTableCell(text))
		}
	}
	if len(ui.chainEvents) > 0 {
		ui.eventList.Select(1, 0)
		ui.showEvent(0)
	} else {
		ui.detail.SetText("")
	}
}

// showEvent renders the detail panel for a row of the current chain.
func (ui *UI) showEvent(index int) {
	if index < 0 || index >= len(ui.chainEvents) {
		return
	}
	ev := ui.chainEvents[index]

	annotations, err := ui.svc.ListAnnotations(ui.ctx, ev.ID)
	if err != nil {
		ui.logger.Printf("annotations for event %d: %v", ev.ID, err)
	}
	ui.detail.SetText(eventDetail(ev, annotations))
	ui.detail.ScrollToBeginning()
}

// chainLabel names the chain an event belongs to, folding chainless
// events into one bucket so they stay reachable from the browser.
func chainLabel(ev store.Event) string {
	if strings.TrimSpace(ev.ChainID) == "" {
		return unchainedLabel
	}
	return ev.ChainID
}

// chainOrder lists chains by first appearance, matching trace order in
// the figures. The chainless bucket always sorts last.
func chainOrder(events []store.Event) []string {
	var chains []string
	seen := make(map[string]bool)
	unchained := false
	for _, ev := range events {
		label := chainLabel(ev)
		if label == unchainedLabel {
			unchained = true
			continue
		}
		if !seen[label] {
			seen[label] = true
			chains = append(chains, label)
		}
	}
	if unchained {
		chains = append(chains, unchainedLabel)
	}
	return chains
}

// eventRow formats one event as table cells.
func eventRow(ev store.Event) []string {
	ts := ev.Timestamp
	if ev.Plottable {
		ts = ev.PlotTime.Format(store.OperationalTimeLayout)
	}
	return []string{ts, ev.Tactic, ev.SourceHost, ev.DestHost}
}

// eventDetail renders the detail panel text for an event and its notes.
func eventDetail(ev store.Event, annotations []store.Annotation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]Event #%d[-]\n\n", ev.ID)
	fmt.Fprintf(&b, "[::b]Tactic:[::-]   %s\n", ev.Tactic)
	fmt.Fprintf(&b, "[::b]Time:[::-]     %s\n", ev.Timestamp)
	fmt.Fprintf(&b, "[::b]Source:[::-]   %s\n", ev.SourceHost)
	fmt.Fprintf(&b, "[::b]Target:[::-]   %s\n", ev.DestHost)
	fmt.Fprintf(&b, "[::b]Operator:[::-] %s\n", ev.Operator)
	fmt.Fprintf(&b, "[::b]Chain:[::-]    %s\n", chainLabel(ev))
	if ev.Details != "" {
		fmt.Fprintf(&b, "\n%s\n", ev.Details)
	}
	if ev.Notes != "" {
		fmt.Fprintf(&b, "\n[gray]%s[-]\n", ev.Notes)
	}
	if !ev.Plottable {
		b.WriteString("\n[red]Timestamp not plottable; event is listed but not drawn.[-]\n")
	}

	if len(annotations) > 0 {
		fmt.Fprintf(&b, "\n[yellow]Annotations (%d)[-]\n", len(annotations))
		for _, a := range annotations {
			author := a.Author
			if author == "" {
				author = "unknown"
			}
			fmt.Fprintf(&b, "  • %s [gray](%s, %s)[-]\n", a.Body, author, a.CreatedAt.Format("2006-01-02 15:04"))
		}
	}
	return b.String()
}
