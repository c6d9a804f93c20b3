/*
Package nodehost hosts the registry of node_type processors the
workflow engine dispatches into. A processor is looked up by name,
handed a Request carrying its resolved inputs and an auto-tagged
logger (run_id, node_id, and document_id when present in inputs), and
invoked under panic recovery: an uncaught processor panic becomes an
ordinary error result rather than taking down the host process.

Host implements workflow.NodeExecutor directly, so it plugs into
workflow.New without an adapter.
*/
package nodehost
