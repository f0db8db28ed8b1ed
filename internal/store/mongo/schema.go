package mongo

import (
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Index names declared by EnsureSchema.
const (
	IndexStationTimestamp = "idx_station_timestamp"
	IndexSource           = "idx_source"
	IndexTimestamp        = "idx_timestamp"
)

var numericTypes = bson.A{"double", "int", "long", "null"}

// JSONSchema builds the $jsonSchema validator for the observation collection.
func JSONSchema(schema domain.StoreSchema) bson.M {
	props := bson.M{
		string(domain.FieldSource):     sourceProperty(schema.Sources),
		string(domain.FieldStationID):  bson.M{"bsonType": "string", "minLength": 1},
		string(domain.FieldTimestamp):  bson.M{"bsonType": "date"},
		string(domain.FieldRecordHash): bson.M{"bsonType": "string"},
	}
	for _, spec := range domain.FieldSpecs() {
		if spec.Kind == domain.KindText {
			props[string(spec.Field)] = bson.M{"bsonType": bson.A{"string", "null"}}
			continue
		}
		p := bson.M{"bsonType": numericTypes}
		if b := spec.Bounds; b.Min != nil {
			p["minimum"] = *b.Min
		}
		if b := spec.Bounds; b.Max != nil {
			p["maximum"] = *b.Max
			if b.MaxExclusive {
				p["exclusiveMaximum"] = true
			}
		}
		props[string(spec.Field)] = p
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{
				string(domain.FieldSource),
				string(domain.FieldStationID),
				string(domain.FieldTimestamp),
			},
			"properties": props,
		},
	}
}

func sourceProperty(sources []string) bson.M {
	p := bson.M{"bsonType": "string"}
	if len(sources) > 0 {
		enum := make(bson.A, len(sources))
		for i, s := range sources {
			enum[i] = s
		}
		p["enum"] = enum
	}
	return p
}

// IndexModels returns the unique natural-key index and the two read-path
// indexes.
func IndexModels() []mongodriver.IndexModel {
	return []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "station_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName(IndexStationTimestamp).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "source", Value: 1}},
			Options: options.Index().SetName(IndexSource),
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetName(IndexTimestamp),
		},
	}
}

// toDocument converts an observation into its stored form, keeping
// document order and the null/absent distinction.
func toDocument(o domain.Observation) bson.D {
	fields := o.Document()
	doc := make(bson.D, len(fields))
	for i, f := range fields {
		doc[i] = bson.E{Key: f.Key, Value: f.Value}
	}
	return doc
}

func naturalKeyFilter(o domain.Observation) bson.D {
	k := o.Key()
	return bson.D{
		{Key: string(domain.FieldStationID), Value: k.StationID},
		{Key: string(domain.FieldTimestamp), Value: k.Timestamp},
	}
}
