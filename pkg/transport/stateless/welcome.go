package stateless

// welcomePage is served on GET /mcp unless strict compliance is enabled.
const welcomePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>spacegate</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 4rem auto; padding: 0 1rem; color: #222; }
code { background: #f4f4f4; padding: 0.1rem 0.3rem; border-radius: 3px; }
</style>
</head>
<body>
<h1>spacegate</h1>
<p>This is an MCP endpoint. Point an MCP client at <code>POST /mcp</code> with JSON-RPC messages.</p>
<p>Pass a Hub token as <code>Authorization: Bearer &lt;token&gt;</code> to access private resources,
and <code>x-mcp-gradio: owner/name</code> to attach hosted Space tools.</p>
</body>
</html>
`
