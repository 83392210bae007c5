package session

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/driver/fake"
	"github.com/nine15pm/GrokEval/pkg/fault"
	"github.com/nine15pm/GrokEval/pkg/probe"
)

const (
	newChat   driver.Identifier = "a[href='/']"
	loggedIn  driver.Identifier = "#avatar"
	voiceMode driver.Identifier = "[aria-label*='voice']"
	exitVoice driver.Identifier = "[aria-label='Exit voice mode']"
	textInput driver.Identifier = "textarea"
)

func newCycler(d *fake.FakeDriver, cfg Config) *Cycler {
	p := probe.New(d, probe.Config{Identifiers: probe.Identifiers{LoggedIn: loggedIn}}, nil)
	cfg.NewChat = newChat
	return New(d, p, cfg, nil)
}

func TestResetAndVerify(t *testing.T) {
	tests := []struct {
		name      string
		newChat   bool
		loggedIn  bool
		voice     bool
		wantState State
		wantErr   error
	}{
		{name: "active", newChat: true, loggedIn: true, wantState: Active},
		{name: "expired", newChat: true, loggedIn: false, wantState: Expired, wantErr: fault.ErrSessionExpired},
		{name: "logged out page without new chat", newChat: false, loggedIn: false, wantState: Expired, wantErr: fault.ErrSessionExpired},
		{name: "new chat missing", newChat: false, loggedIn: true, wantState: Unverified, wantErr: fault.ErrElementNotFound},
		{name: "voice mode entered", newChat: true, loggedIn: true, voice: true, wantState: Active},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			d := fake.NewFakeDriver()
			d.SetPresent(newChat, tt.newChat)
			d.SetPresent(loggedIn, tt.loggedIn)
			cfg := Config{}
			if tt.voice {
				d.SetPresent(voiceMode, true)
				cfg.VoiceMode = voiceMode
			}

			state, err := newCycler(d, cfg).ResetAndVerify(context.Background(), Unverified)
			is.Equal(state, tt.wantState)
			if tt.wantErr == nil {
				is.NoErr(err)
			} else {
				is.True(errors.Is(err, tt.wantErr))
			}
			if tt.voice {
				is.Equal(d.Clicks(), []driver.Identifier{newChat, voiceMode})
			}
		})
	}
}

func TestSessionExpiredIsFatal(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()
	d.SetPresent(newChat, true)

	state, err := newCycler(d, Config{}).ResetAndVerify(context.Background(), Active)
	is.Equal(state, Expired)
	is.True(fault.IsFatal(err))
	is.True(errors.Is(err, ErrLoggedOut))

	// Once expired, the cycler does not touch the UI again.
	clicks := len(d.Clicks())
	state, err = newCycler(d, Config{}).ResetAndVerify(context.Background(), Expired)
	is.Equal(state, Expired)
	is.True(fault.IsFatal(err))
	is.Equal(len(d.Clicks()), clicks)
}

func TestMissingNewChatIsRetryable(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()
	d.SetPresent(loggedIn, true)

	_, err := newCycler(d, Config{}).ResetAndVerify(context.Background(), Active)
	is.True(fault.IsRecoverable(err))
	is.Equal(fault.IdentifierOf(err), string(newChat))
	is.True(errors.Is(err, driver.ErrNotFound))
}

func TestMissingNewChatNavigatesToPage(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()
	d.SetPresent(loggedIn, true)

	state, err := newCycler(d, Config{PageURL: "https://assistant.test"}).ResetAndVerify(context.Background(), Active)
	is.NoErr(err)
	is.Equal(state, Active)
	is.Equal(d.Visited(), []string{"https://assistant.test"})
	is.Equal(len(d.Clicks()), 0)
}

func TestFailedNavigationKeepsNotFound(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()
	d.SetPresent(loggedIn, true)
	d.NavigateFunc = func(context.Context, string) error { return errors.New("net::ERR_NAME_NOT_RESOLVED") }

	state, err := newCycler(d, Config{PageURL: "https://assistant.test"}).ResetAndVerify(context.Background(), Active)
	is.Equal(state, Unverified)
	is.True(errors.Is(err, fault.ErrElementNotFound))
	is.Equal(fault.IdentifierOf(err), string(newChat))
}

func TestNavigatedPageStillChecksLogin(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver() // neither new chat nor the login indicator

	state, err := newCycler(d, Config{PageURL: "https://assistant.test"}).ResetAndVerify(context.Background(), Active)
	is.Equal(state, Expired)
	is.True(errors.Is(err, fault.ErrSessionExpired))
	is.Equal(d.Visited(), []string{"https://assistant.test"})
}

func TestSendText(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()

	c := newCycler(d, Config{})
	is.True(!c.CanSendText())
	is.True(errors.Is(c.SendText(context.Background(), "hi"), fault.ErrInvalidInput))

	c = newCycler(d, Config{TextInput: textInput})
	is.True(c.CanSendText())
	err := c.SendText(context.Background(), "hi")
	is.True(errors.Is(err, fault.ErrElementNotFound))
	is.Equal(fault.IdentifierOf(err), string(textInput))

	d.SetPresent(textInput, true)
	is.NoErr(c.SendText(context.Background(), "what time is it?"))
	is.Equal(d.Typed(), []string{"what time is it?"})
}

func TestResetCancelled(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()
	d.SetPresent(newChat, true)
	d.SetPresent(loggedIn, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := newCycler(d, Config{}).ResetAndVerify(ctx, Active)
	is.Equal(state, Unverified)
	is.True(errors.Is(err, context.Canceled))
}

func TestRelease(t *testing.T) {
	is := is.New(t)
	d := fake.NewFakeDriver()
	d.SetPresent(exitVoice, true)

	newCycler(d, Config{ExitVoiceMode: exitVoice}).Release(context.Background())
	is.Equal(d.Clicks(), []driver.Identifier{exitVoice})

	// Missing control and unconfigured identifier are both silent.
	d = fake.NewFakeDriver()
	newCycler(d, Config{ExitVoiceMode: exitVoice}).Release(context.Background())
	newCycler(d, Config{}).Release(context.Background())
	is.Equal(len(d.Clicks()), 0)
}

func TestStateString(t *testing.T) {
	is := is.New(t)
	is.Equal(Active.String(), "active")
	is.Equal(Expired.String(), "expired")
}
