package rsvp

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/monitoring"
)

// Actor identifies who is invoking an operation. The engine never reads an
// ambient current user; every call names its actor explicitly.
type Actor struct {
	UserID int64
	Role   model.UserRole
}

// EventDescriptor is the slice of event state the engine needs to gate
// transitions.
type EventDescriptor struct {
	EventID         int64
	OrganizerID     int64
	MaxAttendees    *int
	WaitlistEnabled bool
	StartsAt        time.Time
}

// maxGoing returns the capacity guard value for store writes. Negative
// means unlimited.
func (d *EventDescriptor) maxGoing() int {
	if d.MaxAttendees == nil {
		return -1
	}
	return *d.MaxAttendees
}

// StatusChange is one attendee status write inside an UpdateStatuses batch.
type StatusChange struct {
	AttendeeID int64
	Status     model.RSVPStatus
}

// AttendeeStore is the persistence collaborator. Create and UpdateStatuses
// enforce the duplicate-primary and capacity invariants inside their own
// transactions; the engine's reads are advisory under concurrent callers.
// A negative maxGoing disables the capacity guard. Batches are atomic:
// either every change applies or none does.
type AttendeeStore interface {
	List(eventID int64) ([]model.Attendee, error)
	Get(id int64) (*model.Attendee, error)
	Create(a *model.Attendee, maxGoing int) (*model.Attendee, error)
	UpdateStatuses(eventID int64, changes []StatusChange, maxGoing int) ([]model.Attendee, error)
	SetProfileLink(attendeeID, profileID int64, name, ageGroup string) (*model.Attendee, error)
	Delete(id int64) error
	Counts(eventID int64) (*model.EventCapacity, error)
	Waitlist(eventID int64) ([]model.Attendee, error)
}

// EventDescriptorProvider resolves the capacity configuration for an event.
type EventDescriptorProvider interface {
	Descriptor(eventID int64) (*EventDescriptor, error)
}

// FamilyProfileStore manages the reusable per-user profile records that
// attendees can be linked to.
type FamilyProfileStore interface {
	Get(id int64) (*model.FamilyProfile, error)
	FindByName(userID int64, name string) (*model.FamilyProfile, error)
	Create(userID int64, name, ageGroup string) (*model.FamilyProfile, error)
}

// Registry owns the attendee lifecycle rules for events. All status changes
// pass through it.
type Registry struct {
	attendees AttendeeStore
	events    EventDescriptorProvider
	profiles  FamilyProfileStore
	policy    Policy
	logger    *slog.Logger
}

func NewRegistry(attendees AttendeeStore, events EventDescriptorProvider, profiles FamilyProfileStore, policy Policy, logger *slog.Logger) *Registry {
	return &Registry{
		attendees: attendees,
		events:    events,
		profiles:  profiles,
		policy:    policy,
		logger:    logger,
	}
}

// AddParams describes one attendee to create.
type AddParams struct {
	EventID         int64
	UserID          *int64
	Type            model.AttendeeType
	Name            string
	AgeGroup        string
	Relationship    string
	Status          model.RSVPStatus
	FamilyProfileID *int64
}

// AddResult reports the created attendee. EffectiveStatus may be waitlisted
// when a requested going hit capacity; callers must branch on it, not on
// the request.
type AddResult struct {
	Attendee         *model.Attendee
	RequestedStatus  model.RSVPStatus
	EffectiveStatus  model.RSVPStatus
	WaitlistPosition int
}

type BulkError struct {
	Index int
	Err   error
}

// BulkResult is the best-effort outcome of a batch add: created rows plus
// per-item failures.
type BulkResult struct {
	Created []model.Attendee
	Errors  []BulkError
}

type CascadeError struct {
	AttendeeID int64
	Err        error
}

// StatusResult is the authoritative outcome of UpdateStatus.
type StatusResult struct {
	Attendee         *model.Attendee
	RequestedStatus  model.RSVPStatus
	EffectiveStatus  model.RSVPStatus
	WaitlistPosition int
	PrimaryPromoted  *model.Attendee
	Cascaded         []int64
	CascadeErrors    []CascadeError
	Promoted         []model.Attendee
}

type RemoveResult struct {
	Removed  *model.Attendee
	Promoted []model.Attendee
}

// CapacitySummary is the derived capacity view: counts plus the ordered
// waitlist (position = index + 1).
type CapacitySummary struct {
	Counts   *model.EventCapacity
	Waitlist []model.Attendee
}

// canManage reports whether actor may act on an attendee owned by ownerID.
// Admins and the event organizer manage everything, including bulk-imported
// rows with no account; members manage only their own rows.
func canManage(actor Actor, desc *EventDescriptor, ownerID *int64) bool {
	if actor.Role == model.RoleAdmin || actor.UserID == desc.OrganizerID {
		return true
	}
	return ownerID != nil && *ownerID == actor.UserID
}

// Add creates exactly one attendee record after validating type, status,
// permissions and the capacity policy. A second primary for the same user
// fails with ErrDuplicatePrimary; a going insert at capacity is created
// waitlisted when the event allows it, otherwise fails.
func (r *Registry) Add(actor Actor, p AddParams) (*AddResult, error) {
	if _, err := ParseAttendeeType(string(p.Type)); err != nil {
		return nil, r.reject(err)
	}
	if err := r.policy.ValidTarget(p.Status); err != nil {
		return nil, r.reject(err)
	}
	desc, err := r.descriptor(p.EventID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, desc, p.UserID) {
		return nil, r.reject(ErrPermissionDenied)
	}

	name, ageGroup := p.Name, p.AgeGroup
	if p.FamilyProfileID != nil {
		if p.UserID == nil {
			return nil, r.reject(fmt.Errorf("profile link on accountless attendee: %w", ErrPermissionDenied))
		}
		profile, err := r.profiles.Get(*p.FamilyProfileID)
		if err != nil {
			return nil, fmt.Errorf("get family profile: %w", err)
		}
		if profile == nil || profile.UserID != *p.UserID {
			return nil, r.reject(fmt.Errorf("family profile %d: %w", *p.FamilyProfileID, ErrNotFound))
		}
		name, ageGroup = profile.Name, profile.AgeGroup
	}

	// A family member can only be created straight into going when its
	// primary is already going; promotion happens through UpdateStatus.
	if p.Status == model.StatusGoing && p.Type == model.AttendeeFamilyMember && p.UserID != nil {
		primary, err := r.findPrimary(p.EventID, *p.UserID)
		if err != nil {
			return nil, err
		}
		if primary == nil {
			return nil, r.reject(ErrPrimaryRequired)
		}
		if primary.Status != model.StatusGoing {
			return nil, r.reject(ErrPrimaryNotGoing)
		}
	}

	attendee := &model.Attendee{
		EventID:         p.EventID,
		UserID:          p.UserID,
		Type:            p.Type,
		Name:            name,
		AgeGroup:        ageGroup,
		Relationship:    p.Relationship,
		FamilyProfileID: p.FamilyProfileID,
		Status:          p.Status,
	}

	guard := -1
	if p.Status == model.StatusGoing {
		guard = desc.maxGoing()
	}
	created, err := r.attendees.Create(attendee, guard)
	if errors.Is(err, ErrCapacityExceeded) && desc.WaitlistEnabled {
		attendee.Status = model.StatusWaitlisted
		created, err = r.attendees.Create(attendee, -1)
	}
	if err != nil {
		return nil, r.reject(err)
	}

	res := &AddResult{
		Attendee:        created,
		RequestedStatus: p.Status,
		EffectiveStatus: created.Status,
	}
	if created.Status == model.StatusWaitlisted {
		res.WaitlistPosition = r.positionOf(p.EventID, created.ID)
	}
	monitoring.TrackRSVPTransition("none", string(created.Status))
	r.logger.Info("attendee added",
		"event_id", p.EventID,
		"attendee_id", created.ID,
		"type", created.Type,
		"requested", p.Status,
		"effective", created.Status)
	return res, nil
}

// BulkAdd applies Add to each item independently, re-evaluating capacity
// after every successful insert. Partial success is expected; failures are
// reported per index.
func (r *Registry) BulkAdd(actor Actor, items []AddParams) *BulkResult {
	res := &BulkResult{}
	for i, item := range items {
		added, err := r.Add(actor, item)
		if err != nil {
			res.Errors = append(res.Errors, BulkError{Index: i, Err: err})
			continue
		}
		res.Created = append(res.Created, *added.Attendee)
	}
	return res
}

// UpdateStatus applies one status transition under the engine rules:
// primary→not_going cascades to going family members, going is gated by
// capacity (waitlist overflow), family→going requires a going primary
// (auto-promoted atomically when possible). The effective status in the
// result may differ from the requested one.
func (r *Registry) UpdateStatus(actor Actor, attendeeID int64, newStatus model.RSVPStatus) (*StatusResult, error) {
	if err := r.policy.ValidTarget(newStatus); err != nil {
		return nil, r.reject(err)
	}
	attendee, err := r.getAttendee(attendeeID)
	if err != nil {
		return nil, err
	}
	desc, err := r.descriptor(attendee.EventID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, desc, attendee.UserID) {
		return nil, r.reject(ErrPermissionDenied)
	}

	res := &StatusResult{RequestedStatus: newStatus}
	prev := attendee.Status

	switch {
	case newStatus == model.StatusNotGoing && attendee.Type == model.AttendeePrimary:
		updated, err := r.setStatus(desc, attendee.ID, model.StatusNotGoing, -1)
		if err != nil {
			return nil, err
		}
		res.Attendee = updated
		r.cascadeNotGoing(desc, attendee, res)

	case newStatus == model.StatusGoing:
		if err := r.applyGoing(desc, attendee, res); err != nil {
			return nil, err
		}

	default:
		updated, err := r.setStatus(desc, attendee.ID, newStatus, -1)
		if err != nil {
			return nil, err
		}
		res.Attendee = updated
	}

	res.EffectiveStatus = res.Attendee.Status
	monitoring.TrackRSVPTransition(string(prev), string(res.EffectiveStatus))

	// A slot freed by this transition (or its cascade) goes to the
	// oldest waitlisted attendee. The requester is excluded so that a
	// voluntary step-down is not immediately undone by its own freed slot.
	freed := prev == model.StatusGoing && res.EffectiveStatus != model.StatusGoing
	if freed || len(res.Cascaded) > 0 {
		res.Promoted = r.promoteWaitlisted(desc, attendee.ID)
	}
	if res.EffectiveStatus == model.StatusWaitlisted {
		res.WaitlistPosition = r.positionOf(desc.EventID, attendee.ID)
	}

	r.logger.Info("attendee status updated",
		"event_id", desc.EventID,
		"attendee_id", attendee.ID,
		"from", prev,
		"requested", newStatus,
		"effective", res.EffectiveStatus,
		"cascaded", len(res.Cascaded),
		"promoted", len(res.Promoted))
	return res, nil
}

// Remove deletes one attendee. Primary removal is gated by policy; family
// members are always removable and never cascade.
func (r *Registry) Remove(actor Actor, attendeeID int64) (*RemoveResult, error) {
	attendee, err := r.getAttendee(attendeeID)
	if err != nil {
		return nil, err
	}
	desc, err := r.descriptor(attendee.EventID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, desc, attendee.UserID) {
		return nil, r.reject(ErrPermissionDenied)
	}
	if attendee.Type == model.AttendeePrimary && !r.policy.AllowPrimaryRemoval {
		return nil, r.reject(ErrPrimaryNotRemovable)
	}
	if err := r.attendees.Delete(attendee.ID); err != nil {
		return nil, err
	}

	res := &RemoveResult{Removed: attendee}
	if attendee.Status == model.StatusGoing {
		res.Promoted = r.promoteWaitlisted(desc, attendee.ID)
	}
	r.logger.Info("attendee removed",
		"event_id", desc.EventID,
		"attendee_id", attendee.ID,
		"promoted", len(res.Promoted))
	return res, nil
}

// LinkProfile links an attendee to an existing family profile, overwriting
// the stored name and age group with the profile's current values.
// Re-linking the same profile is a no-op.
func (r *Registry) LinkProfile(actor Actor, attendeeID, profileID int64) (*model.Attendee, error) {
	attendee, err := r.attendeeForLink(actor, attendeeID)
	if err != nil {
		return nil, err
	}
	profile, err := r.profiles.Get(profileID)
	if err != nil {
		return nil, fmt.Errorf("get family profile: %w", err)
	}
	if profile == nil || profile.UserID != *attendee.UserID {
		return nil, r.reject(fmt.Errorf("family profile %d: %w", profileID, ErrNotFound))
	}
	if attendee.FamilyProfileID != nil && *attendee.FamilyProfileID == profile.ID {
		return attendee, nil
	}
	return r.attendees.SetProfileLink(attendee.ID, profile.ID, profile.Name, profile.AgeGroup)
}

// PromoteToProfile derives a family profile from the attendee's current
// name and age group (reusing a same-name profile when one exists) and
// links the attendee to it.
func (r *Registry) PromoteToProfile(actor Actor, attendeeID int64) (*model.Attendee, error) {
	attendee, err := r.attendeeForLink(actor, attendeeID)
	if err != nil {
		return nil, err
	}
	profile, err := r.profiles.FindByName(*attendee.UserID, attendee.Name)
	if err != nil {
		return nil, fmt.Errorf("find family profile: %w", err)
	}
	if profile == nil {
		profile, err = r.profiles.Create(*attendee.UserID, attendee.Name, attendee.AgeGroup)
		if err != nil {
			return nil, fmt.Errorf("create family profile: %w", err)
		}
	}
	if attendee.FamilyProfileID != nil && *attendee.FamilyProfileID == profile.ID {
		return attendee, nil
	}
	return r.attendees.SetProfileLink(attendee.ID, profile.ID, profile.Name, profile.AgeGroup)
}

// Capacity returns the derived counts and the ordered waitlist for an event.
func (r *Registry) Capacity(eventID int64) (*CapacitySummary, error) {
	desc, err := r.descriptor(eventID)
	if err != nil {
		return nil, err
	}
	counts, err := r.attendees.Counts(eventID)
	if err != nil {
		return nil, fmt.Errorf("count attendees: %w", err)
	}
	counts.MaxAttendees = desc.MaxAttendees
	waitlist, err := r.attendees.Waitlist(eventID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return &CapacitySummary{Counts: counts, Waitlist: waitlist}, nil
}

// applyGoing handles every →going transition: the family dependency rule,
// the capacity guard, and the waitlist overflow.
func (r *Registry) applyGoing(desc *EventDescriptor, attendee *model.Attendee, res *StatusResult) error {
	if attendee.Type == model.AttendeeFamilyMember && attendee.UserID != nil {
		primary, err := r.findPrimary(desc.EventID, *attendee.UserID)
		if err != nil {
			return err
		}
		if primary == nil {
			return r.reject(ErrPrimaryRequired)
		}
		if primary.Status == model.StatusWaitlisted {
			// Promoting a waitlisted primary would jump the queue.
			return r.reject(fmt.Errorf("%w: primary is waitlisted", ErrPrimaryNotGoing))
		}
		if primary.Status != model.StatusGoing {
			// Auto-promote the primary in the same transaction.
			// The pair is strict going-or-nothing: a waitlist
			// downgrade would leave the dependency unsatisfied.
			changes := []StatusChange{
				{AttendeeID: primary.ID, Status: model.StatusGoing},
				{AttendeeID: attendee.ID, Status: model.StatusGoing},
			}
			updated, err := r.attendees.UpdateStatuses(desc.EventID, changes, desc.maxGoing())
			if err != nil {
				if errors.Is(err, ErrCapacityExceeded) {
					return r.reject(err)
				}
				return err
			}
			res.PrimaryPromoted = &updated[0]
			res.Attendee = &updated[1]
			monitoring.TrackRSVPTransition(string(primary.Status), string(model.StatusGoing))
			return nil
		}
	}

	updated, err := r.setStatus(desc, attendee.ID, model.StatusGoing, desc.maxGoing())
	if errors.Is(err, ErrCapacityExceeded) && desc.WaitlistEnabled {
		updated, err = r.setStatus(desc, attendee.ID, model.StatusWaitlisted, -1)
	}
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			return r.reject(err)
		}
		return err
	}
	res.Attendee = updated
	return nil
}

// cascadeNotGoing transitions every going family member of the primary's
// user to not_going. Each write is its own transaction; one failure never
// rolls back the others, it is reported in the result instead.
func (r *Registry) cascadeNotGoing(desc *EventDescriptor, primary *model.Attendee, res *StatusResult) {
	if primary.UserID == nil {
		return
	}
	all, err := r.attendees.List(desc.EventID)
	if err != nil {
		res.CascadeErrors = append(res.CascadeErrors, CascadeError{Err: fmt.Errorf("list attendees: %w", err)})
		return
	}
	for _, dep := range all {
		if dep.Type != model.AttendeeFamilyMember || dep.UserID == nil || *dep.UserID != *primary.UserID {
			continue
		}
		if dep.Status != model.StatusGoing {
			continue
		}
		if _, err := r.setStatus(desc, dep.ID, model.StatusNotGoing, -1); err != nil {
			r.logger.Warn("cascade write failed", "attendee_id", dep.ID, "error", err)
			res.CascadeErrors = append(res.CascadeErrors, CascadeError{AttendeeID: dep.ID, Err: err})
			continue
		}
		res.Cascaded = append(res.Cascaded, dep.ID)
		monitoring.TrackRSVPTransition(string(model.StatusGoing), string(model.StatusNotGoing))
	}
}

// promoteWaitlisted moves the oldest waitlisted attendees into going while
// capacity allows, skipping excludeID so a voluntary step-down sticks.
// Best effort: a lost race against a concurrent writer ends the loop.
// Family members whose primary is not going are skipped.
func (r *Registry) promoteWaitlisted(desc *EventDescriptor, excludeID int64) []model.Attendee {
	if !r.policy.AutoPromoteWaitlist || desc.maxGoing() < 0 {
		return nil
	}
	waitlist, err := r.attendees.Waitlist(desc.EventID)
	if err != nil {
		r.logger.Error("list waitlist", "event_id", desc.EventID, "error", err)
		return nil
	}
	var promoted []model.Attendee
	for _, candidate := range waitlist {
		if candidate.ID == excludeID {
			continue
		}
		if candidate.Type == model.AttendeeFamilyMember && candidate.UserID != nil {
			primary, err := r.findPrimary(desc.EventID, *candidate.UserID)
			if err != nil || primary == nil || primary.Status != model.StatusGoing {
				continue
			}
		}
		updated, err := r.setStatus(desc, candidate.ID, model.StatusGoing, desc.maxGoing())
		if err != nil {
			if !errors.Is(err, ErrCapacityExceeded) {
				r.logger.Error("promote from waitlist", "attendee_id", candidate.ID, "error", err)
			}
			break
		}
		promoted = append(promoted, *updated)
		monitoring.TrackRSVPTransition(string(model.StatusWaitlisted), string(model.StatusGoing))
		monitoring.TrackWaitlistPromotion()
	}
	return promoted
}

// attendeeForLink runs the shared guards for profile linking: the row
// exists, the actor may manage it, it has an owning account, and it is not
// the caller's own primary slot (a user's own slot is implicitly linked to
// self).
func (r *Registry) attendeeForLink(actor Actor, attendeeID int64) (*model.Attendee, error) {
	attendee, err := r.getAttendee(attendeeID)
	if err != nil {
		return nil, err
	}
	desc, err := r.descriptor(attendee.EventID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, desc, attendee.UserID) {
		return nil, r.reject(ErrPermissionDenied)
	}
	if attendee.UserID == nil {
		return nil, r.reject(fmt.Errorf("accountless attendee: %w", ErrPermissionDenied))
	}
	if attendee.Type == model.AttendeePrimary && *attendee.UserID == actor.UserID {
		return nil, r.reject(ErrAlreadyLinked)
	}
	return attendee, nil
}

func (r *Registry) getAttendee(id int64) (*model.Attendee, error) {
	a, err := r.attendees.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("attendee %d: %w", id, ErrNotFound)
	}
	return a, nil
}

func (r *Registry) descriptor(eventID int64) (*EventDescriptor, error) {
	desc, err := r.events.Descriptor(eventID)
	if err != nil {
		return nil, fmt.Errorf("event descriptor: %w", err)
	}
	if desc == nil {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	return desc, nil
}

func (r *Registry) findPrimary(eventID, userID int64) (*model.Attendee, error) {
	all, err := r.attendees.List(eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	for _, a := range all {
		if a.Type == model.AttendeePrimary && a.UserID != nil && *a.UserID == userID {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *Registry) setStatus(desc *EventDescriptor, attendeeID int64, status model.RSVPStatus, maxGoing int) (*model.Attendee, error) {
	updated, err := r.attendees.UpdateStatuses(desc.EventID, []StatusChange{{AttendeeID: attendeeID, Status: status}}, maxGoing)
	if err != nil {
		return nil, err
	}
	return &updated[0], nil
}

func (r *Registry) positionOf(eventID, attendeeID int64) int {
	waitlist, err := r.attendees.Waitlist(eventID)
	if err != nil {
		r.logger.Error("list waitlist", "event_id", eventID, "error", err)
		return 0
	}
	for i, a := range waitlist {
		if a.ID == attendeeID {
			return i + 1
		}
	}
	return 0
}

// reject records a rule violation metric and passes the error through.
func (r *Registry) reject(err error) error {
	monitoring.TrackRSVPFailure(failureReason(err))
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicatePrimary):
		return "duplicate_primary"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrPrimaryRequired):
		return "primary_required"
	case errors.Is(err, ErrPrimaryNotGoing):
		return "primary_not_going"
	case errors.Is(err, ErrPrimaryNotRemovable):
		return "primary_not_removable"
	case errors.Is(err, ErrAlreadyLinked):
		return "already_linked"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidType):
		return "invalid_input"
	default:
		return "store"
	}
}
