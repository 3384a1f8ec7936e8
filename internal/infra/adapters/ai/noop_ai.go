package ai

import (
	"context"

	"multimodal-agent/internal/domain/ports/adapter"
)

var _ adapter.InferenceAdapter = (*NoopAdapter)(nil)

// NoopAdapter returns canned responses so the full pipeline can run in dev
// mode without any model endpoint.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

const noopCode = "```python\n" +
	"import matplotlib\n" +
	"matplotlib.use('Agg')\n" +
	"import matplotlib.pyplot as plt\n\n" +
	"values = [3, 7, 5, 9, 4]\n" +
	"plt.plot(values)\n" +
	"plt.savefig('output/chart.png')\n" +
	"print('plotted', len(values), 'values')\n" +
	"```"

func (n *NoopAdapter) Infer(ctx context.Context, role adapter.Role, req adapter.InferRequest) (string, error) {
	switch role {
	case adapter.RoleVision:
		return "The image is a line chart with five labeled data points: 3, 7, 5, 9, 4.", nil
	case adapter.RoleReasoning:
		return "Plan: parse the five values from the analysis, plot them with matplotlib, save the chart to the output directory and print a summary.", nil
	default:
		return noopCode, nil
	}
}
