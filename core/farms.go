package core

import (
	"context"
)

// FarmService manages the authenticated farmer's registered farms.
// All paths are privileged.
type FarmService struct {
	gateway *APIGateway
	logger  Logger
}

// FarmInput carries the writable farm fields
type FarmInput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Size     string `json:"size"`
	CropType string `json:"crop_type"`
}

// NewFarmService creates a farm management client
func NewFarmService(gateway *APIGateway, logger Logger) *FarmService {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &FarmService{gateway: gateway, logger: logger}
}

// ListFarms fetches the farmer's farms. The endpoint returns a bare array.
func (f *FarmService) ListFarms(ctx context.Context) ([]Farm, error) {
	resp := f.gateway.Get(ctx, "/api/farms")
	if err := resp.Error(); err != nil {
		return nil, NewClientError("farms.ListFarms", "farms", err)
	}

	var farms []Farm
	if err := resp.Decode(&farms); err != nil {
		return nil, NewClientError("farms.ListFarms", "farms", err)
	}
	return farms, nil
}

// GetFarm fetches one farm by id
func (f *FarmService) GetFarm(ctx context.Context, id ID) (*Farm, error) {
	resp := f.gateway.Get(ctx, "/api/farms/"+id.String())
	if err := resp.Error(); err != nil {
		return nil, NewClientError("farms.GetFarm", "farms", err)
	}

	var farm Farm
	if err := resp.Decode(&farm); err != nil {
		return nil, NewClientError("farms.GetFarm", "farms", err)
	}
	return &farm, nil
}

// CreateFarm registers a new farm
func (f *FarmService) CreateFarm(ctx context.Context, input FarmInput) error {
	resp := f.gateway.Post(ctx, "/api/farms", input)
	if err := resp.Error(); err != nil {
		return NewClientError("farms.CreateFarm", "farms", err)
	}
	return nil
}

// UpdateFarm replaces a farm's writable fields
func (f *FarmService) UpdateFarm(ctx context.Context, id ID, input FarmInput) error {
	resp := f.gateway.Put(ctx, "/api/farms/"+id.String(), input)
	if err := resp.Error(); err != nil {
		return NewClientError("farms.UpdateFarm", "farms", err)
	}
	return nil
}

// DeleteFarm removes a farm
func (f *FarmService) DeleteFarm(ctx context.Context, id ID) error {
	resp := f.gateway.Delete(ctx, "/api/farms/"+id.String())
	if err := resp.Error(); err != nil {
		return NewClientError("farms.DeleteFarm", "farms", err)
	}
	return nil
}
