package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_1571622396",
			"name": "orders",
			"type": "base",
			"system": false,
			"listRule": "@request.auth.id = buyer",
			"viewRule": "@request.auth.id = buyer",
			"createRule": null,
			"updateRule": null,
			"deleteRule": null,
			"fields": [
				{
					"autogeneratePattern": "[a-z0-9]{15}",
					"hidden": false,
					"id": "text3208210256",
					"max": 15,
					"min": 15,
					"name": "id",
					"pattern": "^[a-z0-9]+$",
					"presentable": false,
					"primaryKey": true,
					"required": true,
					"system": true,
					"type": "text"
				},
				{
					"cascadeDelete": false,
					"collectionId": "pbc_3302416984",
					"hidden": false,
					"id": "relation1001261735",
					"maxSelect": 1,
					"minSelect": 0,
					"name": "event",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "relation"
				},
				{
					"cascadeDelete": false,
					"collectionId": "_pb_users_auth_",
					"hidden": false,
					"id": "relation3182418120",
					"maxSelect": 1,
					"minSelect": 0,
					"name": "buyer",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "relation"
				},
				{
					"hidden": false,
					"id": "number2392944706",
					"min": 0,
					"name": "amount_base_units",
					"onlyInt": true,
					"presentable": false,
					"required": false,
					"system": false,
					"type": "number"
				},
				{
					"hidden": false,
					"id": "select2063623452",
					"maxSelect": 1,
					"name": "status",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "select",
					"values": ["pending_verification", "paid"]
				},
				{
					"hidden": false,
					"id": "text3065852031",
					"max": 66,
					"min": 0,
					"name": "tx_hash",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "autodate2990389176",
					"name": "created",
					"onCreate": true,
					"onUpdate": false,
					"presentable": false,
					"system": false,
					"type": "autodate"
				},
				{
					"hidden": false,
					"id": "autodate3332085495",
					"name": "updated",
					"onCreate": true,
					"onUpdate": true,
					"presentable": false,
					"system": false,
					"type": "autodate"
				}
			],
			"indexes": [
				"CREATE UNIQUE INDEX ` + "`" + `idx_orders_tx_hash` + "`" + ` ON ` + "`" + `orders` + "`" + ` (` + "`" + `tx_hash` + "`" + `) WHERE ` + "`" + `tx_hash` + "`" + ` != ''",
				"CREATE UNIQUE INDEX ` + "`" + `idx_orders_event_buyer` + "`" + ` ON ` + "`" + `orders` + "`" + ` (` + "`" + `event` + "`" + `, ` + "`" + `buyer` + "`" + `)",
				"CREATE INDEX ` + "`" + `idx_orders_status` + "`" + ` ON ` + "`" + `orders` + "`" + ` (` + "`" + `status` + "`" + `)"
			]
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_1571622396")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
