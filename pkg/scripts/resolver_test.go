package scripts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vantagecrm/cadence/pkg/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		scripts       []models.NodeScript
		campaignID    string
		defaultScript string
		want          string
	}{
		{
			name:          "no overrides uses default",
			campaignID:    "c1",
			defaultScript: "D",
			want:          "D",
		},
		{
			name: "matching override wins",
			scripts: []models.NodeScript{
				{CampaignID: "c1", Script: "custom"},
			},
			campaignID:    "c1",
			defaultScript: "D",
			want:          "custom",
		},
		{
			name: "other campaign override ignored",
			scripts: []models.NodeScript{
				{CampaignID: "c2", Script: "other"},
			},
			campaignID:    "c1",
			defaultScript: "D",
			want:          "D",
		},
		{
			name: "empty override falls back to default",
			scripts: []models.NodeScript{
				{CampaignID: "c1", Script: ""},
			},
			campaignID:    "c1",
			defaultScript: "D",
			want:          "D",
		},
		{
			name: "blank override falls back to default",
			scripts: []models.NodeScript{
				{CampaignID: "c1", Script: "   "},
			},
			campaignID:    "c1",
			defaultScript: "D",
			want:          "D",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &models.WorkflowNode{ID: "n1", Channel: models.ChannelEmail, Scripts: tt.scripts}
			assert.Equal(t, tt.want, Resolve(node, tt.campaignID, tt.defaultScript))
		})
	}
}
