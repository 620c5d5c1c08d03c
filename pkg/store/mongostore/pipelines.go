package mongostore

import (
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func matchMarket(market string) bson.D {
	return bson.D{{Key: "$match", Value: bson.D{{Key: "market", Value: market}}}}
}

// orEmpty yields [] for a missing array field.
func orEmpty(path string) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{path, bson.A{}}}}
}

func filterSections(cond bson.D) bson.D {
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: orEmpty("$sections")},
		{Key: "as", Value: "s"},
		{Key: "cond", Value: cond},
	}}}
}

// countAndSlice projects the array at path into {total, data} for window w.
func countAndSlice(path string, w pagination.Window, keep ...string) bson.D {
	fields := bson.D{
		{Key: "total", Value: bson.D{{Key: "$size", Value: path}}},
		{Key: "data", Value: bson.D{{Key: "$slice", Value: bson.A{path, w.Offset(), w.Limit}}}},
	}
	for _, k := range keep {
		fields = append(fields, bson.E{Key: k, Value: 1})
	}
	return bson.D{{Key: "$project", Value: fields}}
}

func categoryPipeline(market, id string) mongo.Pipeline {
	return mongo.Pipeline{
		matchMarket(market),
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "category", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{
				bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: orEmpty("$categories")},
					{Key: "as", Value: "c"},
					{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$c.id", id}}}},
				}}},
				0,
			}}}},
		}}},
	}
}

func sectionsByCategoryPipeline(market, categoryID string, w pagination.Window) mongo.Pipeline {
	return mongo.Pipeline{
		matchMarket(market),
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "hasCategory", Value: bson.D{{Key: "$in", Value: bson.A{categoryID, orEmpty("$categories.id")}}}},
			{Key: "sections", Value: filterSections(bson.D{{Key: "$eq", Value: bson.A{"$$s.categoryId", categoryID}}})},
		}}},
		countAndSlice("$sections", w, "hasCategory"),
	}
}

func curatedSectionsPipeline(market, pattern string, maxSections int, w pagination.Window) mongo.Pipeline {
	if maxSections < 1 {
		maxSections = 1
	}
	titleMatches := bson.D{{Key: "$regexMatch", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$$s.title", ""}}}},
		{Key: "regex", Value: pattern},
		{Key: "options", Value: "i"},
	}}}

	return mongo.Pipeline{
		matchMarket(market),
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "sections", Value: bson.D{{Key: "$slice", Value: bson.A{filterSections(titleMatches), maxSections}}}},
		}}},
		countAndSlice("$sections", w),
	}
}

func randomSectionsPipeline(market string, size int) mongo.Pipeline {
	return mongo.Pipeline{
		matchMarket(market),
		{{Key: "$unwind", Value: "$sections"}},
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: size}}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$sections"}}}},
	}
}

func sectionWindowPipeline(market, id string, w pagination.Window) mongo.Pipeline {
	items := orEmpty("$section.contents.items")

	return mongo.Pipeline{
		matchMarket(market),
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "section", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{
				filterSections(bson.D{{Key: "$eq", Value: bson.A{"$$s._id", id}}}),
				0,
			}}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "found", Value: bson.D{{Key: "$ne", Value: bson.A{bson.D{{Key: "$type", Value: "$section"}}, "missing"}}}},
			{Key: "itemCount", Value: bson.D{{Key: "$size", Value: items}}},
			{Key: "section", Value: bson.D{
				{Key: "_id", Value: "$section._id"},
				{Key: "title", Value: "$section.title"},
				{Key: "categoryId", Value: "$section.categoryId"},
				{Key: "contents", Value: bson.D{
					{Key: "totalCount", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$section.contents.totalCount", 0}}}},
					{Key: "items", Value: bson.D{{Key: "$slice", Value: bson.A{items, w.Offset(), w.Limit}}}},
				}},
			}},
		}}},
	}
}
