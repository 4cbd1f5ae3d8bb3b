package models

// All lists every persisted model in dependency order, for AutoMigrate in
// SQLite mode and tests.
func All() []any {
	return []any{
		&User{},
		&Brand{},
		&Category{},
		&Gender{},
		&SizeOption{},
		&Product{},
		&ProductVariation{},
		&ProductImage{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
