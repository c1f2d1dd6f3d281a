package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"pingme/middleware"
	"pingme/models"
	"pingme/pkg/cache"
)

func currentUserID(c *gin.Context) uint {
	userIDStr, _ := c.Get(middleware.ContextUserIDKey)
	uidStr, _ := userIDStr.(string)
	uid, _ := strconv.Atoi(uidStr)
	return uint(uid)
}

// ListVehicles returns the owner's vehicles including their scan tokens, so
// the dashboard can render the QR payloads.
func ListVehicles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := currentUserID(c)

		var vehicles []models.Vehicle
		if err := db.Where("owner_id = ?", uid).Find(&vehicles).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}

		result := make([]gin.H, 0, len(vehicles))
		for _, v := range vehicles {
			result = append(result, gin.H{
				"id":           v.ID,
				"plate_number": v.PlateNumber,
				"scan_token":   v.ScanToken,
			})
		}
		c.JSON(http.StatusOK, result)
	}
}

// CreateVehicle registers a vehicle and mints its scan token.
func CreateVehicle(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := currentUserID(c)

		var body struct {
			PlateNumber string `json:"plate_number"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.PlateNumber) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "plate_number is required"})
			return
		}

		plate := strings.ToUpper(strings.TrimSpace(body.PlateNumber))
		var exists models.Vehicle
		if err := db.Where("owner_id = ? AND plate_number = ?", uid, plate).First(&exists).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"msg": "Vehicle already registered"})
			return
		}

		vehicle := models.Vehicle{
			OwnerID:     uid,
			PlateNumber: plate,
			ScanToken:   uuid.NewString(),
		}
		if err := db.Create(&vehicle).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to create vehicle"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":           vehicle.ID,
			"plate_number": vehicle.PlateNumber,
			"scan_token":   vehicle.ScanToken,
		})
	}
}

// DeleteVehicle removes a vehicle owned by the current user.
func DeleteVehicle(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := currentUserID(c)
		vid, _ := strconv.Atoi(c.Param("vehicle_id"))

		var vehicle models.Vehicle
		if err := db.Where("id = ? AND owner_id = ?", vid, uid).First(&vehicle).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"msg": "vehicle not found"})
			return
		}
		if err := db.Delete(&vehicle).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to delete vehicle"})
			return
		}
		cache.Default().Delete(cache.KeyFromStrings("scan", vehicle.ScanToken))
		c.JSON(http.StatusOK, gin.H{"msg": "vehicle deleted"})
	}
}

// RotateScanToken mints a fresh scan token, invalidating printed cards.
func RotateScanToken(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := currentUserID(c)
		vid, _ := strconv.Atoi(c.Param("vehicle_id"))

		var vehicle models.Vehicle
		if err := db.Where("id = ? AND owner_id = ?", vid, uid).First(&vehicle).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"msg": "vehicle not found"})
			return
		}

		oldToken := vehicle.ScanToken
		vehicle.ScanToken = uuid.NewString()
		if err := db.Save(&vehicle).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to rotate token"})
			return
		}
		cache.Default().Delete(cache.KeyFromStrings("scan", oldToken))

		c.JSON(http.StatusOK, gin.H{
			"id":         vehicle.ID,
			"scan_token": vehicle.ScanToken,
		})
	}
}
