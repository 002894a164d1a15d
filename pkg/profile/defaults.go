package profile

import "fmt"

// Analysis thresholds shared by every technology.
const (
	DefaultBurstThreshold            = 1.5
	DefaultUserInputThreshold        = 1.0
	DefaultUserEventTolerance        = 4.0
	DefaultCPUBusyThreshold          = 70.0
	DefaultLongBurstDuration         = 5.0
	DefaultPeriodMinCycle            = 10.0
	DefaultPeriodCycleTolerance      = 1.0
	DefaultPeriodMinSamples          = 3
	DefaultCloseSpacedBurstThreshold = 10.0
)

// LTE discontinuous reception timing and power.
const (
	lteDRXPingTime       = 0.002
	lteShortPingPeriod   = 0.02
	lteLongPingPeriod    = 0.04
	lteDRXPingPower      = 1.68
	lteTailPower         = 1.06
	lteIdlePingTime      = 0.043
	lteIdlePingPeriod    = 1.28
	lteIdlePingPower     = 0.594
	lteIdleBasePower     = 0.0
	lteContinuousBeta    = 1.2
	lteInactivityTimer   = 0.1
	lteDRXShortTime      = 0.02
	lteDRXLongTime       = 10.0
	ltePromotionTime     = 0.26
	ltePromotionPower    = 1.21
	umtsIdleDCHPromoAvg  = 2.0
	umtsIdleDCHPower     = 0.53
	umtsDCHPower         = 0.7
	umtsFACHPower        = 0.35
	umtsDCHFACHTimer     = 5.0
	umtsFACHIdleTimer    = 12.0
	wifiActivePower      = 0.403
	wifiStandbyPower     = 0.02
	wifiTailTime         = 0.25
	defaultDeviceSuffix  = "Device"
	defaultProfilePrefix = "Default"
)

// Default returns the reference profile for a technology.
func Default(tech Technology) (Profile, error) {
	p := Profile{
		Technology:                tech,
		BurstThreshold:            DefaultBurstThreshold,
		UserInputThreshold:        DefaultUserInputThreshold,
		UserEventTolerance:        DefaultUserEventTolerance,
		CPUBusyThreshold:          DefaultCPUBusyThreshold,
		LongBurstDuration:         DefaultLongBurstDuration,
		PeriodMinCycle:            DefaultPeriodMinCycle,
		PeriodCycleTolerance:      DefaultPeriodCycleTolerance,
		PeriodMinSamples:          DefaultPeriodMinSamples,
		CloseSpacedBurstThreshold: DefaultCloseSpacedBurstThreshold,
	}

	switch tech {
	case Technology3G:
		p.Radio = RadioParams{
			PromotionState: "PROMO_IDLE_DCH",
			PromotionDelay: umtsIdleDCHPromoAvg,
			PromotionPower: umtsIdleDCHPower,
			ActiveState:    "STATE_DCH",
			ActivePower:    umtsDCHPower,
			IdleState:      "STATE_IDLE",
			IdlePower:      0,
			Tail: []TailStage{
				{Name: "TAIL_DCH", Duration: umtsDCHFACHTimer, Power: umtsDCHPower, Active: true},
				{Name: "TAIL_FACH", Duration: umtsFACHIdleTimer, Power: umtsFACHPower},
			},
		}
	case TechnologyLTE:
		p.Radio = RadioParams{
			PromotionState: "LTE_PROMOTION",
			PromotionDelay: ltePromotionTime,
			PromotionPower: ltePromotionPower,
			ActiveState:    "LTE_CONTINUOUS",
			ActivePower:    lteContinuousBeta,
			IdleState:      "LTE_IDLE",
			IdlePower:      PingAveragedPower(lteIdlePingTime, lteIdlePingPeriod, lteIdlePingPower, lteIdleBasePower),
			Tail: []TailStage{
				{Name: "LTE_CR_TAIL", Duration: lteInactivityTimer, Power: lteContinuousBeta, Active: true},
				{Name: "LTE_DRX_SHORT", Duration: lteDRXShortTime, Power: PingAveragedPower(lteDRXPingTime, lteShortPingPeriod, lteDRXPingPower, lteTailPower)},
				{Name: "LTE_DRX_LONG", Duration: lteDRXLongTime, Power: PingAveragedPower(lteDRXPingTime, lteLongPingPeriod, lteDRXPingPower, lteTailPower)},
			},
		}
	case TechnologyWiFi:
		p.Radio = RadioParams{
			ActiveState: "WIFI_ACTIVE",
			ActivePower: wifiActivePower,
			IdleState:   "WIFI_IDLE",
			IdlePower:   wifiStandbyPower,
			Tail: []TailStage{
				{Name: "WIFI_TAIL", Duration: wifiTailTime, Power: wifiActivePower, Active: true},
			},
		}
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownTechnology, tech)
	}

	p.Name = fmt.Sprintf("%s %s %s", defaultProfilePrefix, tech, defaultDeviceSuffix)
	return p, nil
}

// PingAveragedPower folds a periodic ping of pingTime at pingPower into the
// average draw over one period spent otherwise at basePower.
func PingAveragedPower(pingTime, period, pingPower, basePower float64) float64 {
	if period <= 0 {
		return basePower
	}
	if pingTime > period {
		pingTime = period
	}
	return (pingTime*pingPower + (period-pingTime)*basePower) / period
}
