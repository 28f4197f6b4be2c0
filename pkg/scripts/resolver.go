// Package scripts resolves the outbound text sent at a workflow node.
package scripts

import (
	"strings"

	"github.com/vantagecrm/cadence/pkg/models"
)

// Resolve returns the node's per-campaign override when one exists and is
// non-empty, otherwise the campaign's default script. An empty or blank
// override is ignored so a misconfigured node never sends an empty message.
func Resolve(node *models.WorkflowNode, campaignID, defaultScript string) string {
	for _, script := range node.Scripts {
		if script.CampaignID != campaignID {
			continue
		}

		if strings.TrimSpace(script.Script) != "" {
			return script.Script
		}

		break
	}

	return defaultScript
}
