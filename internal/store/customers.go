package store

import (
	"context"
	"time"

	"github.com/jinzhu/gorm"

	"taboon/internal/models"
)

// Customers remembers returning customers by browser fingerprint
type Customers struct {
	db *gorm.DB
}

// NewCustomers creates a customer memory on top of a migrated database
func NewCustomers(db *gorm.DB) *Customers {
	return &Customers{db: db}
}

// Lookup returns the stored profile. An unknown fingerprint is reported
// through found=false, never as an error.
func (c *Customers) Lookup(ctx context.Context, fingerprint string) (*models.CustomerProfile, bool, error) {
	if fingerprint == "" {
		return nil, false, nil
	}

	var profile models.CustomerProfile
	err := c.db.Where("fingerprint = ?", fingerprint).First(&profile).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &models.PersistenceError{Op: "lookup customer", Err: err}
	}
	return &profile, true, nil
}

// Upsert records a visit. The first call creates the profile; later calls
// only fill fields the store does not know yet (stored values win) and
// increment the visit count atomically. The last visit is always refreshed.
// The row is claimed with an insert-if-absent first, so concurrent first
// visits for one fingerprint are all counted.
func (c *Customers) Upsert(ctx context.Context, fingerprint string, patch models.ProfilePatch) (*models.CustomerProfile, error) {
	if fingerprint == "" {
		return nil, &models.ValidationError{Field: "fingerprint", Reason: "required"}
	}

	now := time.Now().UTC()
	var saved models.CustomerProfile
	err := c.db.Transaction(func(tx *gorm.DB) error {
		claim := tx.Exec(`INSERT INTO customers
			(fingerprint, name, phone, order_type, car_info, address, location, visit_count, last_visit)
			VALUES (?, '', '', '', '', '', '', 0, ?)
			ON CONFLICT (fingerprint) DO NOTHING`, fingerprint, now)
		if claim.Error != nil {
			return claim.Error
		}

		var stored models.CustomerProfile
		if err := tx.Where("fingerprint = ?", fingerprint).First(&stored).Error; err != nil {
			return err
		}

		merged := models.Reconcile(stored, patch)
		fields := map[string]interface{}{
			"name":        merged.Name,
			"phone":       merged.Phone,
			"order_type":  merged.OrderType,
			"car_info":    merged.CarInfo,
			"address":     merged.Address,
			"location":    merged.Location,
			"last_visit":  now,
			"visit_count": gorm.Expr("visit_count + ?", 1),
		}
		if err := tx.Model(&models.CustomerProfile{}).Where("fingerprint = ?", fingerprint).UpdateColumns(fields).Error; err != nil {
			return err
		}
		return tx.Where("fingerprint = ?", fingerprint).First(&saved).Error
	})
	if err != nil {
		return nil, &models.PersistenceError{Op: "upsert customer", Err: err}
	}
	return &saved, nil
}
