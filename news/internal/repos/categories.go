package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"news-platform-backend/news/internal/models"
)

var ErrNotFound = errors.New("not found")

type CategoriesRepo struct {
	coll *mongo.Collection
}

func NewCategoriesRepo(db *mongo.Database) *CategoriesRepo {
	return &CategoriesRepo{coll: db.Collection("categories")}
}

// Create inserts a category. The parent reference may arrive as a hex object
// id or as the parent's name; both resolve to the stored parent id.
func (r *CategoriesRepo) Create(ctx context.Context, name string, parent *string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("category name is required")
	}

	category := models.Category{
		ID:        bson.NewObjectID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if parent != nil && strings.TrimSpace(*parent) != "" {
		parentID, err := r.resolveParent(ctx, strings.TrimSpace(*parent))
		if err != nil {
			return nil, err
		}
		category.Parent = &parentID
	}

	if _, err := r.coll.InsertOne(ctx, category); err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return &category, nil
}

func (r *CategoriesRepo) resolveParent(ctx context.Context, parent string) (bson.ObjectID, error) {
	if id, err := bson.ObjectIDFromHex(parent); err == nil {
		return id, nil
	}
	var found models.Category
	err := r.coll.FindOne(ctx, bson.M{"name": parent}).Decode(&found)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return bson.ObjectID{}, fmt.Errorf("parent category %q: %w", parent, ErrNotFound)
		}
		return bson.ObjectID{}, fmt.Errorf("find parent category: %w", err)
	}
	return found.ID, nil
}

func (r *CategoriesRepo) Rename(ctx context.Context, categoryID bson.ObjectID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("category name is required")
	}
	res, err := r.coll.UpdateByID(ctx, categoryID, bson.M{"$set": bson.M{"name": name}})
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CategoriesRepo) Delete(ctx context.Context, categoryID bson.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": categoryID})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CategoriesRepo) FindByID(ctx context.Context, categoryID bson.ObjectID) (*models.Category, error) {
	var category models.Category
	err := r.coll.FindOne(ctx, bson.M{"_id": categoryID}).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find category: %w", err)
	}
	return &category, nil
}

var graphLookupChildren = bson.M{
	"from":             "categories",
	"startWith":        "$_id",
	"connectFromField": "_id",
	"connectToField":   "parent",
	"as":               "children",
}

// TreeAll returns every category with its descendants attached.
func (r *CategoriesRepo) TreeAll(ctx context.Context) ([]models.CategoryTree, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$graphLookup", Value: graphLookupChildren}},
		{{Key: "$project", Value: bson.M{"name": 1, "children": 1}}},
	}
	return r.aggregateTrees(ctx, pipeline)
}

// TreeParents returns only root categories, each with its descendants.
func (r *CategoriesRepo) TreeParents(ctx context.Context) ([]models.CategoryTree, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"parent": nil}}},
		{{Key: "$graphLookup", Value: graphLookupChildren}},
		{{Key: "$project", Value: bson.M{"name": 1, "children": 1}}},
	}
	return r.aggregateTrees(ctx, pipeline)
}

func (r *CategoriesRepo) TreeByName(ctx context.Context, name string) ([]models.CategoryTree, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"name": name}}},
		{{Key: "$graphLookup", Value: graphLookupChildren}},
	}
	return r.aggregateTrees(ctx, pipeline)
}

func (r *CategoriesRepo) TreeByID(ctx context.Context, categoryID bson.ObjectID) ([]models.CategoryTree, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": categoryID}}},
		{{Key: "$graphLookup", Value: graphLookupChildren}},
	}
	return r.aggregateTrees(ctx, pipeline)
}

func (r *CategoriesRepo) aggregateTrees(ctx context.Context, pipeline mongo.Pipeline) ([]models.CategoryTree, error) {
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	defer cursor.Close(ctx)
	var trees []models.CategoryTree
	if err := cursor.All(ctx, &trees); err != nil {
		return nil, fmt.Errorf("decode category trees: %w", err)
	}
	return trees, nil
}

// DescendantIDs resolves the given categories to themselves plus every
// descendant id, deduplicated. Used to answer "news in this category"
// including its whole subtree.
func (r *CategoriesRepo) DescendantIDs(ctx context.Context, roots []bson.ObjectID) ([]bson.ObjectID, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$in": roots}}}},
		{{Key: "$graphLookup", Value: bson.M{
			"from":             "categories",
			"startWith":        "$_id",
			"connectFromField": "_id",
			"connectToField":   "parent",
			"as":               "descendants",
		}}},
		{{Key: "$project", Value: bson.M{
			"allCategoryIds": bson.M{"$concatArrays": bson.A{bson.A{"$_id"}, "$descendants._id"}},
		}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate descendants: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		AllCategoryIDs []bson.ObjectID `bson:"allCategoryIds"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode descendants: %w", err)
	}

	seen := make(map[bson.ObjectID]struct{})
	var ids []bson.ObjectID
	for _, row := range rows {
		for _, id := range row.AllCategoryIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
