package handler

import (
	"net/http"

	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
)

// NewListVendorsHandler handles GET /api/v1/vendors.
// Query: is_active, has_capacity (true|false), service_type, page, limit.
func NewListVendorsHandler(svc VendorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		page, limit, err := pageParams(r)
		if err != nil {
			response.BadRequest(w, err.Error(), nil)
			return
		}
		active, err := boolParam(r, "is_active")
		if err != nil {
			response.BadRequest(w, err.Error(), nil)
			return
		}
		hasCapacity, err := boolParam(r, "has_capacity")
		if err != nil {
			response.BadRequest(w, err.Error(), nil)
			return
		}

		filter := store.VendorFilter{
			IsActive:    active,
			HasCapacity: hasCapacity,
			ServiceType: r.URL.Query().Get("service_type"),
			Page:        page,
			Limit:       limit,
		}
		vendors, total, err := svc.ListVendors(r.Context(), actor, filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		filter.Normalize()
		response.Collection(w, vendors, response.Page(filter.Page, filter.Limit, total))
	}
}

// NewCreateVendorHandler handles POST /api/v1/vendors.
func NewCreateVendorHandler(svc VendorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		var req dispatch.CreateVendorInput
		if !decodeBody(w, r, &req) {
			return
		}

		vendor, err := svc.CreateVendor(r.Context(), actor, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, vendor)
	}
}

// NewGetVendorHandler handles GET /api/v1/vendors/{vendorID}.
func NewGetVendorHandler(svc VendorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		vendorID, ok := pathID(w, r, "vendorID", "vendor")
		if !ok {
			return
		}

		vendor, err := svc.GetVendor(r.Context(), actor, vendorID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, vendor)
	}
}

// NewSetVendorActiveHandler handles PATCH /api/v1/vendors/{vendorID}/activate
// and /deactivate; active selects which.
func NewSetVendorActiveHandler(svc VendorService, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		vendorID, ok := pathID(w, r, "vendorID", "vendor")
		if !ok {
			return
		}

		vendor, err := svc.SetVendorActive(r.Context(), actor, vendorID, active)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, vendor)
	}
}
