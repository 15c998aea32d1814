package room

import "strings"

// Trigger kind short names for compact display.
var triggerShort = map[string]string{
	"OnEnterEvent":        "Enter",
	"OnExitEvent":         "Exit",
	"OnClickEvent":        "Click",
	"OnCollideEvent":      "Collide",
	"OnStartEvent":        "Start",
	"OnTimerEvent":        "Timer",
	"ScoreTrigger":        "ValueUpdated",
	"QuestTrigger":        "Quest",
	"OnPointerEnterEvent": "PointerEnter",
	"OnPointerExitEvent":  "PointerExit",
	"OnEquipEvent":        "Equip",
	"OnUnequipEvent":      "Unequip",
	"OnDeathEvent":        "Death",
	"OnRespawnEvent":      "Respawn",
	"OnGrabEvent":         "Grab",
	"OnReleaseEvent":      "Release",
	"OnPlayerJoinEvent":   "PlayerJoin",
	"OnPlayerLeaveEvent":  "PlayerLeave",
	"OnConsumeEvent":      "Consume",
	"OnChatCommandEvent":  "ChatCommand",
	"OnEmoteEvent":        "Emote",
	"OnDamageEvent":       "Damage",
	"OnHealEvent":         "Heal",
}

// Effect kind short names for compact display.
var effectShort = map[string]string{
	"TeleportEvent":                "Teleport",
	"PlaySoundOnce":                "Sound",
	"PlaySoundInALoop":             "SoundLoop",
	"StopSound":                    "StopSound",
	"UpdateScoreEvent":             "UpdateScore",
	"UpdateScoreEventString":       "UpdateScoreStr",
	"NotificationPillEvent":        "Notification",
	"ShowObjectEvent":              "Show",
	"HideObjectEvent":              "Hide",
	"MoveToSpot":                   "Move",
	"FunctionEffector":             "Function",
	"RunTriggersFromEffector":      "RunTriggers",
	"PortalsAnimation":             "Animation",
	"DuplicateItem":                "Duplicate",
	"ChangePlayerHealth":           "Health",
	"LockMovement":                 "LockMove",
	"UnlockMovement":               "UnlockMove",
	"DisplayValueEvent":            "DisplayValue",
	"HideValueEvent":               "HideValue",
	"StartTimerEffect":             "StartTimer",
	"StopTimerEffect":              "StopTimer",
	"CancelTimerEffect":            "CancelTimer",
	"AddVelocityToPlayer":          "Velocity",
	"LockCamera":                   "LockCam",
	"UnlockCamera":                 "UnlockCam",
	"ChangeCameraZoom":             "CamZoom",
	"ToggleFreeCam":                "FreeCam",
	"ChangeCamState":               "CamState",
	"SetCameraFilter":              "CamFilter",
	"ShowOutline":                  "Outline",
	"HideOutline":                  "HideOutline",
	"MoveItemToPlayer":             "MoveToPlayer",
	"DamageOverTime":               "DOT",
	"PlayerEmote":                  "Emote",
	"MutePlayer":                   "Mute",
	"PostScoreToLeaderboard":       "PostScore",
	"ClearLeaderboard":             "ClearLB",
	"OpenLeaderboardEffect":        "OpenLB",
	"ResetAllTasks":                "ResetTasks",
	"ChangeAudiusEffect":           "Audius",
	"StartAutoRun":                 "AutoRun",
	"StopAutoRun":                  "StopAutoRun",
	"ChangeMovementProfile":        "MoveProfile",
	"HideAllPlayersEvent":          "HidePlayers",
	"LockAvatarChange":             "LockAvatar",
	"UnlockAvatarChange":           "UnlockAvatar",
	"DisplayAvatarScreen":          "AvatarScreen",
	"ChangeAvatarEffector":         "ChangeAvatar",
	"ChangeRoundyWearableEffector": "Wearable",
	"ToggleLockCursor":             "LockCursor",
}

// Prefab name abbreviations for compact display.
var prefabShort = map[string]string{
	"ResizableCube":   "Cube",
	"Addressable":     "VFX",
	"GlbCollectable":  "Collectible",
	"WorldText":       "Text",
	"SpawnPoint":      "Spawn",
	"DefaultPainting": "Image",
	"DefaultVideo":    "Video",
	"PlaceableTV":     "TV",
	"CameraObject":    "Camera",
	"GLBNPC":          "NPC",
	"GLBSign":         "Sign",
	"BlinkLight":      "BlinkLight",
	"SpotLight":       "SpotLight",
	"Destructible":    "Destructible",
}

// Trigger kinds the platform runtime accepts. The short-name tables above
// are display-only and cover a different, overlapping set.
var validTriggers = map[string]bool{
	"OnClickEvent":             true,
	"OnCollideEvent":           true,
	"OnCollisionStoppedEvent":  true,
	"OnHoverStartEvent":        true,
	"OnHoverEndEvent":          true,
	"OnPlayerLoggedIn":         true,
	"OnKeyPressedEvent":        true,
	"OnKeyReleasedEvent":       true,
	"OnPlayerDied":             true,
	"OnPlayerRevived":          true,
	"OnPlayerMove":             true,
	"OnPlayerStoppedMoving":    true,
	"OnMicrophoneUnmuted":      true,
	"OnTimerStopped":           true,
	"OnCountdownTimerFinished": true,
	"ScoreTrigger":             true,
	"OnAnimationStoppedEvent":  true,
	"OnItemCollectedEvent":     true,
	"OnItemClickEvent":         true,
	"PlayerLeave":              true,
	"SwapVolume":               true,
	// Trigger-cube-only. OnExitEvent is an alias for UserExitTrigger.
	"OnEnterEvent":    true,
	"UserExitTrigger": true,
	"OnExitEvent":     true,
	// Item-specific.
	"OnDestroyedEvent":     true,
	"OnGunEquippedTrigger": true,
	"ShotHitTrigger":       true,
	"GotKillTrigger":       true,
	"StartedAimingTrigger": true,
	"StoppedAimingTrigger": true,
	"OnGunTossedTrigger":   true,
	"OnTakeDamageTrigger":  true,
	"OnVehicleEntered":     true,
	"OnVehicleExited":      true,
	"OnNpcSentTag":         true,
	"OnEnemyDied":          true,
}

// Effect kinds the platform runtime accepts.
var validEffects = map[string]bool{
	"ShowObjectEvent":              true,
	"HideObjectEvent":              true,
	"ShowOutline":                  true,
	"HideOutline":                  true,
	"MoveToSpot":                   true,
	"PortalsAnimation":             true,
	"DuplicateItem":                true,
	"MoveItemToPlayer":             true,
	"AddVelocityToPlayer":          true,
	"TeleportEvent":                true,
	"ChangePlayerHealth":           true,
	"DamageOverTime":               true,
	"LockMovement":                 true,
	"UnlockMovement":               true,
	"StartAutoRun":                 true,
	"StopAutoRun":                  true,
	"PlayerEmote":                  true,
	"MutePlayer":                   true,
	"HideAllPlayersEvent":          true,
	"LockAvatarChange":             true,
	"UnlockAvatarChange":           true,
	"DisplayAvatarScreen":          true,
	"ChangeAvatarEffector":         true,
	"ChangeMovementProfile":        true,
	"ChangeRoundyWearableEffector": true,
	"LockCamera":                   true,
	"UnlockCamera":                 true,
	"ChangeCameraZoom":             true,
	"ToggleFreeCam":                true,
	"ChangeCamState":               true,
	"SetCameraFilter":              true,
	"ToggleLockCursor":             true,
	"NotificationPillEvent":        true,
	"DisplayValueEvent":            true,
	"HideValueEvent":               true,
	"UpdateScoreEvent":             true,
	"UpdateScoreEventString":       true,
	"FunctionEffector":             true,
	"RunTriggersFromEffector":      true,
	"ResetAllTasks":                true,
	"StartTimerEffect":             true,
	"StopTimerEffect":              true,
	"CancelTimerEffect":            true,
	"PostScoreToLeaderboard":       true,
	"ClearLeaderboard":             true,
	"OpenLeaderboardEffect":        true,
	"PlaySoundOnce":                true,
	"PlaySoundInALoop":             true,
	"StopSound":                    true,
	"ChangeAudiusEffect":           true,
	"ChangeBloom":                  true,
	"ChangeTimeOfDay":              true,
	"RotateSkybox":                 true,
	"ChangeFog":                    true,
	"SendMessageToIframes":         true,
	"ChangeVoiceGroup":             true,
	"IframeEvent":                  true,
	"IframeStopEvent":              true,
	"NPCMessageEvent":              true,
	"DisplaySellSwap":              true,
	"HideSellSwap":                 true,
	"DialogEffectorDisplay":        true,
	"RefreshUserInventory":         true,
	"EquipGunEffect":               true,
	"TossGunEffect":                true,
	"ResetGunEffect":               true,
	"ActivateTriggerZoneEffect":    true,
	"DeactivateTriggerZoneEffect":  true,
	"PlayAnimationOnce":            true,
	"PlayAnimationInALoop":         true,
	"StopGLBAnimation":             true,
	"RespawnDestructible":          true,
}

// Trigger kinds the platform fires from direct player input, as opposed to
// timers, quest state changes or script-driven triggers.
var playerTriggers = map[string]bool{
	"OnClickEvent":            true,
	"OnCollideEvent":          true,
	"OnCollisionStoppedEvent": true,
	"OnEnterEvent":            true,
	"OnExitEvent":             true,
	"OnHoverStartEvent":       true,
	"OnHoverEndEvent":         true,
	"OnKeyPressedEvent":       true,
	"OnKeyReleasedEvent":      true,
	"OnItemCollectedEvent":    true,
	"OnItemClickEvent":        true,
	"OnGunEquippedTrigger":    true,
	"ShotHitTrigger":          true,
	"GotKillTrigger":          true,
}

// IsPlayerTrigger reports whether a trigger kind fires from direct player
// input.
func IsPlayerTrigger(kind string) bool { return playerTriggers[kind] }

// KnownTriggerKind reports whether the platform runtime understands the
// trigger kind.
func KnownTriggerKind(kind string) bool { return validTriggers[kind] }

// KnownEffectKind reports whether the platform runtime understands the
// effect kind.
func KnownEffectKind(kind string) bool { return validEffects[kind] }

// ShortTrigger abbreviates a trigger kind for index rows. Unknown kinds
// fall back to stripping the "On" prefix and "Event" suffix.
func ShortTrigger(kind string) string {
	if s, ok := triggerShort[kind]; ok {
		return s
	}
	s := strings.TrimSuffix(kind, "Event")
	s = strings.TrimPrefix(s, "On")
	return s
}

// ShortEffect abbreviates an effect kind for index rows. Unknown kinds fall
// back to stripping an "Event" or "Effect" suffix.
func ShortEffect(kind string) string {
	if s, ok := effectShort[kind]; ok {
		return s
	}
	if strings.HasSuffix(kind, "Event") {
		return strings.TrimSuffix(kind, "Event")
	}
	return strings.TrimSuffix(kind, "Effect")
}

// ShortPrefab abbreviates a prefab name for index rows.
func ShortPrefab(prefab string) string {
	if s, ok := prefabShort[prefab]; ok {
		return s
	}
	return prefab
}

// Quest statuses the platform persists.
const (
	QuestNotStarted = "notStarted"
	QuestInProgress = "inProgress"
	QuestCompleted  = "completed"
)

var questStatusOrder = map[string]int{
	QuestNotStarted: 0,
	QuestInProgress: 1,
	QuestCompleted:  2,
}

// ValidQuestStatus reports whether s is one of the three platform statuses.
func ValidQuestStatus(s string) bool {
	_, ok := questStatusOrder[s]
	return ok
}

// QuestStatusRank orders statuses notStarted < inProgress < completed.
// Unknown statuses sort last.
func QuestStatusRank(s string) int {
	if r, ok := questStatusOrder[s]; ok {
		return r
	}
	return 99
}

// Quest transition codes used as TargetState on quest-bound trigger tasks.
var transitionNames = map[int]string{
	101: "any->notStarted",
	111: "notStarted->inProgress",
	121: "inProgress->completed",
	131: "completed->inProgress",
	141: "any->completed",
	151: "any->inProgress",
	161: "inProgress->notStarted",
	171: "completed->notStarted",
	181: "notStarted->completed",
}

// TransitionName names a quest transition code, "" if unknown.
func TransitionName(code int) string { return transitionNames[code] }

// ValidTransition reports whether code is a known quest transition.
func ValidTransition(code int) bool {
	_, ok := transitionNames[code]
	return ok
}

// ValidQuestID reports whether id matches the platform quest id shape: "m"
// followed by 10 to 16 lowercase alphanumerics. The editor generates several
// prefixes ("mlh", "mk", "ml").
func ValidQuestID(id string) bool {
	if len(id) < 11 || len(id) > 17 || id[0] != 'm' {
		return false
	}
	for _, r := range id[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// SplitQuestName splits an ordered quest name "N_suffix" into its numeric
// prefix and display suffix. Names without the prefix sort last.
func SplitQuestName(name string) (int, string) {
	before, after, ok := strings.Cut(name, "_")
	if !ok {
		return 999, name
	}
	n := 0
	for _, r := range before {
		if r < '0' || r > '9' {
			return 999, name
		}
		n = n*10 + int(r-'0')
	}
	if before == "" {
		return 999, name
	}
	return n, after
}
