package domain

import "time"

// Brand is a restaurant brand (a chain or concept).
type Brand struct {
	Base
	Name        string `json:"name"        gorm:"type:varchar(120);not null;index" validate:"required,max=120"`
	Description string `json:"description" gorm:"type:text"                        validate:"max=1000"`
	LogoURL     string `json:"logoUrl"     gorm:"type:varchar(512)"                validate:"omitempty,url,max=512"`
}

// TableName returns the database table name for Brand.
func (Brand) TableName() string { return "brands" }

// Restaurant is a physical location belonging to a brand.
type Restaurant struct {
	Base
	BrandID string `json:"brandId" gorm:"type:char(36);not null;index" validate:"required,max=36"`
	Name    string `json:"name"    gorm:"type:varchar(120);not null;index" validate:"required,max=120"`
	Address string `json:"address" gorm:"type:varchar(255)"                validate:"max=255"`
	Phone   string `json:"phone"   gorm:"type:varchar(32)"                 validate:"max=32"`
}

func (Restaurant) TableName() string { return "restaurants" }

// Category groups menu items of one restaurant.
type Category struct {
	Base
	RestaurantID string `json:"restaurantId" gorm:"type:char(36);not null;index" validate:"required,max=36"`
	Name         string `json:"name"         gorm:"type:varchar(120);not null"   validate:"required,max=120"`
	Position     int    `json:"position"     gorm:"not null"                     validate:"gte=0"`
}

func (Category) TableName() string { return "categories" }

// MenuItem is a sellable item. Price is in the restaurant's currency.
type MenuItem struct {
	Base
	CategoryID  string  `json:"categoryId"  gorm:"type:char(36);not null;index" validate:"required,max=36"`
	Name        string  `json:"name"        gorm:"type:varchar(120);not null"   validate:"required,max=120"`
	Description string  `json:"description" gorm:"type:text"                    validate:"max=1000"`
	Price       float64 `json:"price"       gorm:"not null"                     validate:"gte=0"`
	TaxGroupID  string  `json:"taxGroupId"  gorm:"type:char(36);index"          validate:"max=36"`
}

func (MenuItem) TableName() string { return "menu_items" }

// Discount kinds.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Discount is a price reduction, either a percentage or a fixed amount.
type Discount struct {
	Base
	Name     string     `json:"name"     gorm:"type:varchar(120);not null" validate:"required,max=120"`
	Kind     string     `json:"kind"     gorm:"type:varchar(16);not null;index" validate:"required,oneof=percentage fixed"`
	Value    float64    `json:"value"    gorm:"not null"                   validate:"gt=0"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

func (Discount) TableName() string { return "discounts" }

// TaxGroup is a named tax rate in percent.
type TaxGroup struct {
	Base
	Name string  `json:"name" gorm:"type:varchar(120);not null" validate:"required,max=120"`
	Rate float64 `json:"rate" gorm:"not null"                   validate:"gte=0,lte=100"`
}

func (TaxGroup) TableName() string { return "tax_groups" }

// DiningTable is a table on a restaurant floor.
type DiningTable struct {
	Base
	RestaurantID string `json:"restaurantId" gorm:"type:char(36);not null;index" validate:"required,max=36"`
	Name         string `json:"name"         gorm:"type:varchar(64);not null"    validate:"required,max=64"`
	Seats        int    `json:"seats"        gorm:"not null"                     validate:"gte=1,lte=100"`
}

func (DiningTable) TableName() string { return "dining_tables" }

// Role is a named permission set assigned to users.
type Role struct {
	Base
	Name        string   `json:"name"        gorm:"type:varchar(64);not null;index" validate:"required,max=64"`
	Permissions []string `json:"permissions" gorm:"serializer:json;type:text"       validate:"dive,required,max=64"`
}

func (Role) TableName() string { return "roles" }

// User is a back-office staff account.
type User struct {
	Base
	Name   string `json:"name"   gorm:"type:varchar(120);not null"      validate:"required,max=120"`
	Email  string `json:"email"  gorm:"type:varchar(254);not null;index" validate:"required,email,max=254"`
	RoleID string `json:"roleId" gorm:"type:char(36);index"             validate:"max=36"`
}

func (User) TableName() string { return "users" }

// Models returns one pointer per persisted model, for migrations.
func Models() []any {
	return []any{
		&Brand{}, &Restaurant{}, &Category{}, &MenuItem{}, &Discount{},
		&TaxGroup{}, &DiningTable{}, &Role{}, &User{}, &Idempotency{},
	}
}
