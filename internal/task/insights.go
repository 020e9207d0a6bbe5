package task

import "fmt"

// Пороги insights по истории workflow.
const (
	// repeatThreshold — с какого вхождения команды в историю
	// выставляется insight о повторе.
	repeatThreshold = 2

	// longSessionThreshold — с какого выполнения workflow считается
	// длинным.
	longSessionThreshold = 10
)

// nextSteps — статическая карта intent → шаги продолжения workflow.
// Неизвестные intents продолжения не получают.
var nextSteps = map[string][]string{
	"create_order":   {"validate_payment", "reserve_inventory"},
	"cancel_order":   {"release_inventory", "refund_payment"},
	"provision":      {"configure", "verify"},
	"deprovision":    {"cleanup", "confirm_release"},
	"query":          {"render_result"},
	"report":         {"deliver_report"},
	"workflow_error": {"review_failure"},
}

// nextStepsFor возвращает шаги продолжения для intent.
func nextStepsFor(intent string) []string {
	steps, ok := nextSteps[intent]
	if !ok {
		return nil
	}
	return append([]string(nil), steps...)
}

// suggestedActions возвращает подсказки по confidence результата.
func suggestedActions(confidence, threshold float64) []string {
	if confidence < threshold {
		return []string{"needs_clarification"}
	}
	return nil
}

// insightsFor возвращает наблюдения по истории workflow.
//
// Insights советующие: engine может их игнорировать, task body может
// менять стратегию. История advisory, поэтому никакие решения о
// корректности на них не опираются.
func insightsFor(execCtx *ExecutionContext) []string {
	if execCtx == nil || execCtx.WorkflowID == "" {
		return nil
	}

	var insights []string

	repeats := 0
	for _, previous := range execCtx.CommandHistory {
		if previous == execCtx.Command {
			repeats++
		}
	}
	if repeats >= repeatThreshold {
		insights = append(insights, fmt.Sprintf(
			"command repeated %d times in this workflow", repeats+1))
	}

	// ExecutionCount уже включает текущее выполнение
	if execCtx.ExecutionCount >= longSessionThreshold {
		insights = append(insights, "long-running workflow, consider summarizing state")
	}

	return insights
}
