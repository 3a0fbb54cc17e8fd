// Package domain models charge points from the French IRVE open-data extract.
//
// # Data Source
//
// Records come from the consolidated IRVE dataset published on data.gouv.fr
// (Etalab, "Infrastructures de Recharge pour Véhicules Électriques"). The
// extract is a single CSV with one row per charge point (point de charge),
// merged from per-operator submissions. Because operators submit both
// roaming and local identifiers, the same physical charge point can appear
// under several rows.
//
// # IRVE Column Conventions
//
// Identifiers:
//
//	id_station_itinerance — station-level roaming ID (AFIREV format, e.g. "FRTSLP1234")
//	id_pdc_itinerance     — charge-point roaming ID
//	id_pdc_local          — operator-local charge-point ID
//	Any of the three may be blank; older submissions carry only the local ID.
//
// Coordinates:
//
//	consolidated_latitude / consolidated_longitude, WGS-84 decimal degrees.
//	Some submissions leave them blank or write the (0,0) placeholder; since
//	(0,0) sits in the Gulf of Guinea it cannot be a real French charge point
//	and is treated as unset.
//
// Power:
//
//	puissance_nominale in kW. Occasionally suffixed ("22 kW"), written with a
//	decimal comma ("3,7"), or negative by data-entry error. Negative and
//	unparseable values become unknown, never zero — a genuine 0 kW rating is
//	kept so upstream data errors stay visible.
//
// Dates:
//
//	date_mise_en_service (installation) and date_maj (last update), usually
//	ISO "2006-01-02" but also seen as RFC 3339 timestamps and the French
//	"02/01/2006" form. Parsed against an ordered format list, first match
//	wins; no match means unknown.
//
// # Identity Keys
//
// Duplicate rows are collapsed under a deterministic identity key: the
// station roaming ID when present, else a charge-point ID, else a SHA-256
// short hash of (coordinates rounded to 4 decimals, operator, power). The
// same raw row always yields the same key, so reprocessing the extract is
// idempotent and downstream upserts can rely on ON CONFLICT semantics.
// See [IdentityKey].
//
// # Power Tiers
//
// A categorical tier is derived from puissance_nominale via an ascending
// threshold table (left-inclusive, right-exclusive, last tier unbounded):
//
//	<7.4 kW slow | [7.4,22) standard | [22,50) fast | [50,150) rapid | ≥150 ultra-rapid
//
// Unknown power maps to the unknown tier. Thresholds are configuration
// (see [TierTable]), not inline constants.
package domain
