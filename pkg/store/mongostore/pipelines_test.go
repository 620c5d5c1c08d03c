package mongostore

import (
	"testing"

	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func stageNames(p mongo.Pipeline) []string {
	names := make([]string, len(p))
	for i, stage := range p {
		names[i] = stage[0].Key
	}
	return names
}

func TestPipelines_StageOrder(t *testing.T) {
	w := pagination.Window{Page: 2, Limit: 5}

	tests := []struct {
		name     string
		pipeline mongo.Pipeline
		want     []string
	}{
		{"category", categoryPipeline("US", "pop"), []string{"$match", "$project"}},
		{"sections by category", sectionsByCategoryPipeline("US", "pop", w), []string{"$match", "$project", "$project"}},
		{"curated", curatedSectionsPipeline("US", "popular", 20, w), []string{"$match", "$project", "$project"}},
		{"random", randomSectionsPipeline("US", 5), []string{"$match", "$unwind", "$sample", "$replaceRoot"}},
		{"section window", sectionWindowPipeline("US", "s1", w), []string{"$match", "$project", "$project"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stageNames(tt.pipeline)
			if len(got) != len(tt.want) {
				t.Fatalf("stages = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("stage %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
			match := tt.pipeline[0][0].Value.(bson.D)
			if match[0].Key != "market" || match[0].Value != "US" {
				t.Errorf("first stage does not match the market: %v", match)
			}
		})
	}
}

func TestCountAndSlice_Window(t *testing.T) {
	stage := countAndSlice("$sections", pagination.Window{Page: 3, Limit: 10}, "hasCategory")
	fields := stage[0].Value.(bson.D)

	slice := fields[1].Value.(bson.D)[0].Value.(bson.A)
	if slice[1] != 20 || slice[2] != 10 {
		t.Errorf("$slice args = %v, want [$sections 20 10]", slice)
	}
	if fields[2].Key != "hasCategory" {
		t.Errorf("kept fields = %v", fields[2:])
	}
}

func TestCuratedPipeline_MaxAtLeastOne(t *testing.T) {
	p := curatedSectionsPipeline("US", "x", 0, pagination.Window{Page: 1, Limit: 3})
	project := p[1][0].Value.(bson.D)
	slice := project[1].Value.(bson.D)[0].Value.(bson.A)
	if slice[1] != 1 {
		t.Errorf("max = %v, want 1", slice[1])
	}
}
