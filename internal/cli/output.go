package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output печатает ответы API: таблицей или JSON (--json).
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными writers.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// --- Workers ---

var workerHeaders = []string{"ID", "STATE", "HEALTHY", "PID", "SYMBOLS", "ERRORS", "LAST_HEARTBEAT"}

// Workers печатает список воркеров и итог «N workers, M healthy».
func (o *Output) Workers(workers []WorkerResponse) {
	if o.jsonMode {
		o.JSON(workers)
		return
	}

	healthy := 0
	rows := make([][]string, len(workers))
	for i, w := range workers {
		if w.IsHealthy {
			healthy++
		}
		rows[i] = []string{
			w.WorkerID,
			w.State,
			strconv.FormatBool(w.IsHealthy),
			pidString(w.PID),
			strings.Join(w.Symbols, ","),
			strconv.Itoa(w.ErrorsCount),
			orDash(w.LastHeartbeat),
		}
	}
	o.Table(workerHeaders, rows)
	fmt.Fprintf(o.w, "\n%d workers, %d healthy\n", len(workers), healthy)
}

// Worker печатает карточку воркера с его подпиской.
func (o *Output) Worker(w WorkerResponse) {
	rows := [][]string{
		{"ID", w.WorkerID},
		{"Strategy", w.StrategyPath},
		{"State", w.State},
		{"Healthy", strconv.FormatBool(w.IsHealthy)},
		{"PID", pidString(w.PID)},
		{"Symbols", strings.Join(w.Symbols, ",")},
		{"Created", w.CreatedAt},
		{"Started", orDash(w.StartedAt)},
		{"Last heartbeat", orDash(w.LastHeartbeat)},
		{"Errors", strconv.Itoa(w.ErrorsCount)},
		{"Last error", orDash(w.LastError)},
	}
	if w.Subscription != nil {
		rows = append(rows,
			[]string{"Data types", orDash(strings.Join(w.Subscription.DataTypes, ","))},
			[]string{"Topics", strings.Join(w.Subscription.Topics, ",")},
		)
	}
	o.fields(rows, w)
}

// Health печатает отчёт о здоровье воркера.
func (o *Output) Health(r HealthReport) {
	lastHeartbeat := "-"
	if r.LastHeartbeat != nil {
		lastHeartbeat = *r.LastHeartbeat
	}

	o.fields([][]string{
		{"ID", r.WorkerID},
		{"State", r.State},
		{"Healthy", strconv.FormatBool(r.IsHealthy)},
		{"Heartbeats in window", strconv.Itoa(r.HeartbeatCount)},
		{"Last heartbeat", lastHeartbeat},
		{"Consecutive failures", strconv.Itoa(r.ConsecutiveFailures)},
		{"Restarts in window", strconv.Itoa(r.RestartCount)},
		{"Should restart", strconv.FormatBool(r.ShouldRestart)},
		{"Restart delay", fmt.Sprintf("%gs", r.RestartDelaySec)},
		{"Restart recommended", strconv.FormatBool(r.RestartRecommended)},
	}, r)
}

// --- Supervisor / Broker ---

// SupervisorStats печатает статистику supervisor.
func (o *Output) SupervisorStats(s SupervisorStats) {
	o.fields([][]string{
		{"Workers", strconv.Itoa(s.TotalWorkers)},
		{"Healthy", strconv.Itoa(s.HealthyWorkers)},
		{"Unhealthy", strconv.Itoa(s.UnhealthyWorkers)},
		{"Restarts in window", strconv.Itoa(s.TotalRestarts)},
		{"Health loop running", strconv.FormatBool(s.Running)},
	}, s)
}

// BrokerStats печатает статистику broker.
func (o *Output) BrokerStats(s BrokerStats) {
	o.fields([][]string{
		{"Subscriptions", strconv.Itoa(s.TotalSubscriptions)},
		{"Topics", strconv.Itoa(s.TotalTopics)},
		{"Published", strconv.FormatUint(s.MessagesPublished, 10)},
		{"Dropped", strconv.FormatUint(s.MessagesDropped, 10)},
		{"Preprocessors", orDash(strings.Join(s.Preprocessors, ","))},
	}, s)
}

// Topics печатает топики с числом подписчиков.
func (o *Output) Topics(topics []TopicResponse) {
	rows := make([][]string, len(topics))
	for i, t := range topics {
		rows[i] = []string{t.Topic, strconv.Itoa(t.Subscribers)}
	}
	o.Print([]string{"TOPIC", "SUBSCRIBERS"}, rows, topics)
}

// Subscribers печатает воркеров, подписанных на символ.
func (o *Output) Subscribers(subs SubscribersResponse) {
	rows := make([][]string, len(subs.Workers))
	for i, w := range subs.Workers {
		rows[i] = []string{w, subs.Symbol, subs.DataType}
	}
	o.Print([]string{"WORKER", "SYMBOL", "DATA_TYPE"}, rows, subs)
}

// --- Primitives ---

// Print выводит таблицу или jsonData в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// fields — таблица FIELD/VALUE для одного объекта.
func (o *Output) fields(rows [][]string, jsonData any) {
	o.Print([]string{"FIELD", "VALUE"}, rows, jsonData)
}

// Table выводит таблицу через tabwriter с разделителем под заголовком.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func pidString(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
