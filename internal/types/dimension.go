package types

// DimCombo is an immutable tuple of dimension foreign keys. Rows are
// created once and used only as lookup keys.
type DimCombo struct {
	ComboID       int64  `gorm:"column:combo_id;primaryKey;autoIncrement" json:"combo_id"`
	CompanyID     *int64 `gorm:"column:company_id" json:"company_id,omitempty"`
	CoreCompanyID *int64 `gorm:"column:core_company_id" json:"core_company_id,omitempty"`
	ProductID     *int64 `gorm:"column:product_id" json:"product_id,omitempty"`
	ChannelID     *int64 `gorm:"column:channel_id" json:"channel_id,omitempty"`
}

func (DimCombo) TableName() string { return "dim_combo" }

type DimCompany struct {
	CompanyID       int64  `gorm:"column:company_id;primaryKey;autoIncrement" json:"company_id"`
	CompanyCode     string `gorm:"column:company_code;size:128" json:"company_code"`
	CompanyName     string `gorm:"column:company_name;size:255" json:"company_name"`
	Level           *int   `gorm:"column:level" json:"level,omitempty"`
	ParentCompanyID *int64 `gorm:"column:parent_company_id" json:"parent_company_id,omitempty"`
	Path            string `gorm:"column:path;type:text" json:"path"`
	IsActive        *bool  `gorm:"column:is_active" json:"is_active,omitempty"`
}

func (DimCompany) TableName() string { return "dim_company" }

type DimProduct struct {
	ProductID   int64  `gorm:"column:product_id;primaryKey;autoIncrement" json:"product_id"`
	ProductCode string `gorm:"column:product_code;size:128" json:"product_code"`
	ProductName string `gorm:"column:product_name;size:255" json:"product_name"`
	ProductType string `gorm:"column:product_type;type:text" json:"product_type"`
}

func (DimProduct) TableName() string { return "dim_product" }

type DimChannel struct {
	ChannelID   int64  `gorm:"column:channel_id;primaryKey;autoIncrement" json:"channel_id"`
	ChannelCode string `gorm:"column:channel_code;size:128" json:"channel_code"`
	ChannelName string `gorm:"column:channel_name;size:255" json:"channel_name"`
	ChannelType string `gorm:"column:channel_type;type:text" json:"channel_type"`
}

func (DimChannel) TableName() string { return "dim_channel" }
