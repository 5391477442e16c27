package db

type DrinkModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Title  string `gorm:"size:80;uniqueIndex;not null"`
	Recipe string `gorm:"type:text;not null"`
}

func (DrinkModel) TableName() string {
	return "drinks"
}
