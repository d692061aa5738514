package model

// State identifies the screen a user is on.
type State string

const (
	StateMainMenu          State = "main_menu"
	StateGenerateMenu      State = "generate_menu"
	StateProfileMenu       State = "profile_menu"
	StateImageGen          State = "image_gen"
	StateTextGen           State = "text_gen"
	StateAvatarGen         State = "avatar_gen"
	StateLogoGen           State = "logo_gen"
	StatePremiumInfo       State = "premium_info"
	StateShop              State = "shop"
	StateReferral          State = "referral"
	StateBalance           State = "balance"
	StateActivatePromo     State = "activate_promo"
	StateSupport           State = "support"
	StateImageCountSelect  State = "image_count_select"
	StateImageModelSelect  State = "image_model_select"
	StateTextModelSelect   State = "text_model_select"
	StateModelSelect       State = "model_select"
	StateCheckSubscription State = "check_subscription"
	StateTemplates         State = "templates"
	StateTemplateFill      State = "template_fill"
	StateAchievements      State = "achievements"
	StateSettings          State = "settings"
)

// AllStates lists every known state.
func AllStates() []State {
	return []State{
		StateMainMenu, StateGenerateMenu, StateProfileMenu, StateImageGen, StateTextGen,
		StateAvatarGen, StateLogoGen, StatePremiumInfo, StateShop,
		StateReferral, StateBalance, StateActivatePromo, StateSupport, StateImageCountSelect,
		StateImageModelSelect, StateTextModelSelect, StateModelSelect, StateCheckSubscription,
		StateTemplates, StateTemplateFill, StateAchievements, StateSettings,
	}
}

// Known reports whether s is one of the declared states.
func (s State) Known() bool {
	for _, k := range AllStates() {
		if k == s {
			return true
		}
	}
	return false
}

// AwaitsInput reports whether free text typed in this state is consumed as input.
func (s State) AwaitsInput() bool {
	switch s {
	case StateImageGen, StateTextGen, StateAvatarGen, StateLogoGen, StateActivatePromo, StateTemplateFill:
		return true
	default:
		return false
	}
}

// Kind is a generation category with its own base cost.
type Kind string

const (
	KindImage   Kind = "image"
	KindText    Kind = "text"
	KindAvatar  Kind = "avatar"
	KindLogo    Kind = "logo"
	KindImprove Kind = "improve"
)

// IsImage reports whether the kind produces an image URL.
func (k Kind) IsImage() bool {
	return k == KindImage || k == KindAvatar || k == KindLogo
}

// KindForState maps an input state to the generation it triggers.
func KindForState(s State) (Kind, bool) {
	switch s {
	case StateImageGen:
		return KindImage, true
	case StateTextGen:
		return KindText, true
	case StateAvatarGen:
		return KindAvatar, true
	case StateLogoGen:
		return KindLogo, true
	default:
		return "", false
	}
}
