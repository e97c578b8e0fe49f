// Package platform defines the hardware contract that every switch platform
// implements: chassis, fans, fan drawers, power supplies, thermal sensors,
// transceivers, firmware components, LEDs and the watchdog.
//
// Methods return errors; converting a failed read into a display sentinel
// ("N/A", false, 0) is done only at the edges (STATE_DB, CLI, API) with
// OrNA, OrFalse and OrZero.
package platform
