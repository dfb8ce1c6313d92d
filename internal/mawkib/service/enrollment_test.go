package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hajjtech/mawkib/internal/mawkib/codec"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor/sim"
	"github.com/hajjtech/mawkib/internal/mawkib/service"
	"github.com/hajjtech/mawkib/internal/mawkib/store/memory"
)

type enrollFixture struct {
	codec    *codec.Codec
	pilgrims *memory.PilgrimStore
	finger   *sim.Fingerprint
	cards    *sim.CardWriter
	enroller *service.Enroller
}

func newEnrollFixture(t *testing.T) *enrollFixture {
	t.Helper()

	cdc, err := codec.New(testCardSecret)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	f := &enrollFixture{
		codec:    cdc,
		pilgrims: memory.NewPilgrimStore(),
		finger:   &sim.Fingerprint{},
		cards:    &sim.CardWriter{},
	}
	f.enroller = service.NewEnroller(cdc, f.pilgrims, f.finger, f.cards, silentLogger())
	return f
}

func TestEnroll_HappyPath(t *testing.T) {
	f := newEnrollFixture(t)
	ctx := context.Background()

	rec, err := f.enroller.Enroll(ctx, "HAJJ-0001", "Ahmed Ali")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if rec.FingerprintRef != 1 {
		t.Errorf("FingerprintRef = %d, want first free slot 1", rec.FingerprintRef)
	}

	// The card carries the same sealed credential the store holds, and
	// it round-trips through the codec.
	written := f.cards.Written()
	if len(written) != 1 || written[0] != rec.CardCredential {
		t.Fatalf("card payload does not match stored credential")
	}
	cred, err := f.codec.Decrypt(rec.CardCredential)
	if err != nil {
		t.Fatalf("Decrypt stored credential: %v", err)
	}
	if cred.HajjID != "HAJJ-0001" {
		t.Errorf("credential HajjID = %q", cred.HajjID)
	}
}

func TestEnroll_AllocatesNextFreeSlot(t *testing.T) {
	f := newEnrollFixture(t)
	ctx := context.Background()

	for i, id := range []string{"HAJJ-0001", "HAJJ-0002", "HAJJ-0003"} {
		rec, err := f.enroller.Enroll(ctx, id, "Pilgrim "+id)
		if err != nil {
			t.Fatalf("Enroll(%s): %v", id, err)
		}
		if rec.FingerprintRef != i+1 {
			t.Errorf("Enroll(%s) ref = %d, want %d", id, rec.FingerprintRef, i+1)
		}
	}
}

func TestEnroll_DuplicateRejected(t *testing.T) {
	f := newEnrollFixture(t)
	ctx := context.Background()

	if _, err := f.enroller.Enroll(ctx, "HAJJ-0001", "Ahmed Ali"); err != nil {
		t.Fatalf("first Enroll: %v", err)
	}
	_, err := f.enroller.Enroll(ctx, "HAJJ-0001", "Ahmed Ali")
	if !errors.Is(err, service.ErrAlreadyEnrolled) {
		t.Fatalf("err = %v, want ErrAlreadyEnrolled", err)
	}
}

func TestEnroll_CardWriteFailureRollsBackTemplate(t *testing.T) {
	f := newEnrollFixture(t)
	ctx := context.Background()

	f.cards.WriteErr = errors.New("card removed from field")

	if _, err := f.enroller.Enroll(ctx, "HAJJ-0001", "Ahmed Ali"); err == nil {
		t.Fatal("expected enroll to fail on card write")
	}
	if slots := f.finger.EnrolledSlots(); len(slots) != 0 {
		t.Errorf("template slots %v left behind after failed enroll", slots)
	}
	if _, err := f.pilgrims.FindByHajjID(ctx, "HAJJ-0001"); err == nil {
		t.Errorf("record stored despite failed card write")
	}
}

func TestEnroll_InputValidation(t *testing.T) {
	f := newEnrollFixture(t)
	ctx := context.Background()

	if _, err := f.enroller.Enroll(ctx, "", "Ahmed Ali"); err == nil {
		t.Error("empty hajj id accepted")
	}
	if _, err := f.enroller.Enroll(ctx, "HAJJ-0001", "A"); err == nil {
		t.Error("one-character name accepted")
	}
}

func TestReissue_SupersedesAndReEnrolls(t *testing.T) {
	f := newEnrollFixture(t)
	ctx := context.Background()

	orig, err := f.enroller.Enroll(ctx, "HAJJ-0001", "Ahmed Ali")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	fresh, err := f.enroller.Reissue(ctx, "HAJJ-0001")
	if err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	if fresh.CardCredential == orig.CardCredential {
		t.Errorf("reissued credential identical to the original")
	}
	if fresh.Name != orig.Name {
		t.Errorf("Name = %q, want carried over %q", fresh.Name, orig.Name)
	}

	// The active record is the fresh one.
	got, err := f.pilgrims.FindByHajjID(ctx, "HAJJ-0001")
	if err != nil {
		t.Fatalf("FindByHajjID: %v", err)
	}
	if got.CardCredential != fresh.CardCredential {
		t.Errorf("active record still carries the superseded credential")
	}
}
