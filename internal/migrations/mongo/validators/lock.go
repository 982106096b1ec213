package validators

import "go.mongodb.org/mongo-driver/bson"

var ResourceLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"resource_type",
			"resource_record_id",
			"holder_id",
			"operation",
			"lease_id",
			"acquired_at",
			"last_renewed_at",
			"expires_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 160,
			},

			"resource_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"quotation",
					"booking",
					"job_cart",
					"payment",
					"event",
					"client",
					"service_provider",
				},
			},

			"resource_record_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"holder_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"holder_role": bson.M{
				"bsonType": "string",
			},

			"operation": bson.M{
				"bsonType": "string",
				"enum": []string{
					"edit",
					"delete",
					"approve",
					"reject",
					"cancel",
				},
			},

			"lease_id": bson.M{
				"bsonType": "string",
			},

			"acquired_at": bson.M{
				"bsonType": "date",
			},

			"last_renewed_at": bson.M{
				"bsonType": "date",
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
