package database

import (
	"fmt"
	"time"

	"github.com/learnforge/marketplace-api/model"
	"gorm.io/gorm"
)

// RunSeeds populates the baseline rows the service expects: the singleton
// platform wallet and a sample welcome coupon for local development.
func RunSeeds(db *gorm.DB) error {
	if err := seedPlatformWallet(db); err != nil {
		return fmt.Errorf("seed platform wallet: %w", err)
	}
	if err := seedWelcomeCoupon(db); err != nil {
		return fmt.Errorf("seed welcome coupon: %w", err)
	}
	return nil
}

func seedPlatformWallet(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.PlatformWallet{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		fmt.Println("✓ Platform wallet already exists")
		return nil
	}

	wallet := model.PlatformWallet{Currency: "VND", IsActive: true}
	if err := db.Create(&wallet).Error; err != nil {
		return err
	}
	fmt.Println("✓ Platform wallet created")
	return nil
}

func seedWelcomeCoupon(db *gorm.DB) error {
	var existing model.Coupon
	err := db.Where("code = ?", "WELCOME10").First(&existing).Error
	if err == nil {
		fmt.Println("✓ Welcome coupon already exists")
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	perUser := 1
	coupon := model.Coupon{
		Code:         "WELCOME10",
		Description:  "10% off the first order",
		Type:         model.CouponTypePercentage,
		Value:        10,
		UsagePerUser: &perUser,
		ValidFrom:    time.Now(),
		ValidTo:      time.Now().AddDate(1, 0, 0),
		IsActive:     true,
	}
	if err := db.Create(&coupon).Error; err != nil {
		return err
	}
	fmt.Println("✓ Welcome coupon created (WELCOME10)")
	return nil
}
