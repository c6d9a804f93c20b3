/*
Package trigger maps an observed or synthesized Event to zero or more
workflow entry points. Triggers are indexed in memory by (source, kind)
and registered per workflow; matching a route additionally requires
every one of the trigger's conditions — a small predicate language over
event fields supporting equality, numeric comparison, string prefix,
and regex — to evaluate true against the event.

Conditions are compiled once at registration time. A trigger whose
condition fails to compile (bad regex, unknown op) is dropped with a
warning log rather than rejecting the whole workflow or crashing the
router.
*/
package trigger
