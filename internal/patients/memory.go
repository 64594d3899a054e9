package patients

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// MemoryRepository keeps patients in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	patients map[string]*Patient
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{patients: make(map[string]*Patient)}
}

func memoryKey(clinicID, phone string) string {
	return clinicID + "|" + phone
}

// FindByPhone implements Repository.
func (r *MemoryRepository) FindByPhone(_ context.Context, clinicID, phone string) (*Patient, error) {
	normalized, err := validateKey(clinicID, phone)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[memoryKey(clinicID, normalized)]
	if !ok {
		return nil, apperrors.NotFound("patient %s in clinic %s", normalized, clinicID)
	}
	cp := *p
	return &cp, nil
}

// GetOrCreate implements Repository.
func (r *MemoryRepository) GetOrCreate(_ context.Context, clinicID, phone string) (*Patient, error) {
	normalized, err := validateKey(clinicID, phone)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey(clinicID, normalized)
	p, ok := r.patients[key]
	if !ok {
		p = &Patient{
			ID:        uuid.New().String(),
			ClinicID:  clinicID,
			Phone:     normalized,
			CreatedAt: time.Now().UTC(),
		}
		r.patients[key] = p
	}
	cp := *p
	return &cp, nil
}
