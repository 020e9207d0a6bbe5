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

// Output форматирует ответы operational API для оператора.
//
// Списки выводятся таблицами, одиночные сущности — парами
// поле/значение; --json переключает данные на JSON для скриптов.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Status выводит сводный статус worker'а.
func (o *Output) Status(status *StatusResponse) {
	if o.jsonMode {
		o.JSON(status)
		return
	}
	o.details([][2]string{
		{"Health", status.Health},
		{"Engine", connectedLabel(status.EngineConnected)},
		{"Tasks", strconv.FormatInt(status.Metrics.Total, 10)},
		{"Failures", strconv.FormatInt(status.Metrics.Failures, 10)},
		{"Cache hits", strconv.FormatInt(status.Metrics.CacheHits, 10)},
		{"Cache entries", strconv.Itoa(status.CacheEntries)},
		{"Saga backlog", strconv.Itoa(status.SagaBacklog)},
	})
}

// Registrations выводит зарегистрированные task handlers.
func (o *Output) Registrations(registrations []RegistrationResponse) {
	if o.jsonMode {
		o.JSON(registrations)
		return
	}

	rows := make([][]string, len(registrations))
	for i, r := range registrations {
		rows[i] = []string{
			r.TaskName,
			r.Status,
			strconv.FormatInt(r.TasksProcessed, 10),
			strconv.Itoa(r.Restarts),
			fmt.Sprintf("%.1f%%", r.Health.SuccessRate),
			r.LastTaskAt,
		}
	}
	o.table([]string{"TASK", "STATUS", "PROCESSED", "RESTARTS", "SUCCESS_RATE", "LAST_TASK"}, rows)
}

// SagaRecord выводит запись компенсации саги.
func (o *Output) SagaRecord(record *SagaRecordResponse) {
	if o.jsonMode {
		o.JSON(record)
		return
	}

	pairs := [][2]string{
		{"Saga", record.SagaID},
		{"Step", record.StepName},
		{"Artifacts", strings.Join(record.Data.ArtifactIDs, ", ")},
		{"Resources", strings.Join(record.Data.ResourceIDs, ", ")},
		{"Cache keys", strings.Join(record.Data.CacheKeys, ", ")},
		{"Manual intervention", strconv.FormatBool(record.ManualIntervention)},
		{"Recorded", record.RecordedAt},
	}
	if record.FailureReason != "" {
		pairs = append(pairs, [2]string{"Failure reason", record.FailureReason})
	}
	o.details(pairs)
}

// Compensation выводит результат компенсации саги.
func (o *Output) Compensation(result *CompensationResponse) {
	if o.jsonMode {
		o.JSON(result)
		return
	}

	pairs := [][2]string{
		{"Saga", result.SagaID},
		{"Compensated", strconv.FormatBool(result.Compensated)},
		{"No-op", strconv.FormatBool(result.NoOp)},
		{"Manual intervention", strconv.FormatBool(result.RequiresManualIntervention)},
		{"Artifacts deleted", strconv.Itoa(result.ArtifactsDeleted)},
		{"Resources released", strconv.Itoa(result.ResourcesReleased)},
		{"Keys invalidated", strconv.Itoa(result.KeysInvalidated)},
	}
	if len(result.Failures) > 0 {
		pairs = append(pairs, [2]string{"Failures", strings.Join(result.Failures, "; ")})
	}
	o.details(pairs)
}

// Coordination выводит результат cross-workflow операции.
func (o *Output) Coordination(result *CoordinationResponse) {
	if o.jsonMode {
		o.JSON(result)
		return
	}

	pairs := [][2]string{
		{"Type", result.Type},
		{"Target", result.TargetWorkflowID},
		{"Success", strconv.FormatBool(result.Success)},
		{"Requires retry", strconv.FormatBool(result.RequiresRetry)},
	}
	if result.Error != "" {
		pairs = append(pairs, [2]string{"Error", result.Error})
	}
	o.details(pairs)
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// table выводит список сущностей таблицей через tabwriter.
func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// details выводит одну сущность парами поле/значение.
func (o *Output) details(pairs [][2]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	for _, pair := range pairs {
		fmt.Fprintf(tw, "%s:\t%s\n", pair[0], pair[1])
	}
	tw.Flush()
}

func connectedLabel(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}
