package memstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

func nowUTC() time.Time { return time.Now().UTC() }

func itoa(n int) string { return strconv.Itoa(n) }

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsStatus(list []models.JobStatus, s models.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []models.JobPriority, p models.JobPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func hasSpecialization(specs []string, serviceType string) bool {
	for _, s := range specs {
		if strings.EqualFold(s, serviceType) {
			return true
		}
	}
	return false
}

func ratingOf(v *models.Vendor) float64 {
	if v.Rating == nil {
		return -1
	}
	return *v.Rating
}

func cloneVendor(v models.Vendor) models.Vendor {
	v.Specializations = append([]string(nil), v.Specializations...)
	if v.Rating != nil {
		r := *v.Rating
		v.Rating = &r
	}
	return v
}
