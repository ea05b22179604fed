package controller

// Sidebar is the district info panel the controller writes to.
type Sidebar interface {
	SetDistrict(name, population string)
	SetResetEnabled(enabled bool)
	SetInfoVisible(visible bool)
}

// SidebarState is a Sidebar that records its fields as Datastar signals.
type SidebarState struct {
	Name          string `json:"cdname"`
	Population    string `json:"population"`
	ResetDisabled bool   `json:"resetdisabled"`
	InfoVisible   bool   `json:"infovisible"`
	Error         string `json:"error"`

	dirty bool
}

// NewSidebarState returns the initial sidebar: prompt shown, reset disabled.
func NewSidebarState(prompt string) *SidebarState {
	return &SidebarState{Name: prompt, ResetDisabled: true, InfoVisible: true}
}

func (s *SidebarState) SetDistrict(name, population string) {
	s.Name, s.Population = name, population
	s.dirty = true
}

func (s *SidebarState) SetResetEnabled(enabled bool) {
	s.ResetDisabled = !enabled
	s.dirty = true
}

func (s *SidebarState) SetInfoVisible(visible bool) {
	s.InfoVisible = visible
	s.dirty = true
}

// SetError shows msg as a user-visible error. An empty msg clears it.
func (s *SidebarState) SetError(msg string) {
	s.Error = msg
	s.dirty = true
}

// TakeDirty reports whether the state changed since the last call and
// clears the flag.
func (s *SidebarState) TakeDirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}
