package output

import "net/http"

// GetViewerHandler serves the viewer page: the stream scaled to fit, with
// pointer events sent over the session input websocket.
func GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FocusRelay</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { background: #000; overflow: hidden; }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            user-select: none;
            -webkit-user-drag: none;
        }
        #cursor {
            position: fixed;
            width: 10px;
            height: 10px;
            margin: -5px 0 0 -5px;
            border: 2px solid #fff;
            border-radius: 50%;
            box-shadow: 0 0 2px #000;
            pointer-events: none;
            display: none;
        }
        #status {
            position: fixed;
            bottom: 16px;
            left: 50%;
            transform: translateX(-50%);
            padding: 8px 14px;
            background: rgba(40, 40, 40, 0.9);
            color: #eee;
            border-radius: 20px;
            font: 13px system-ui, sans-serif;
            display: none;
        }
    </style>
</head>
<body>
    <img id="view" src="/stream" alt="" draggable="false">
    <div id="cursor"></div>
    <div id="status"></div>
    <script>
    (function () {
        const view = document.getElementById('view');
        const cursor = document.getElementById('cursor');
        const status = document.getElementById('status');
        const buttons = ['left', 'middle', 'right'];
        let ws = null;
        let statusTimer = null;

        function surface() {
            const r = view.getBoundingClientRect();
            const nw = view.naturalWidth, nh = view.naturalHeight;
            if (!nw || !nh) return { x: r.left, y: r.top, w: r.width, h: r.height };
            const s = Math.min(r.width / nw, r.height / nh);
            const w = nw * s, h = nh * s;
            return { x: r.left + (r.width - w) / 2, y: r.top + (r.height - h) / 2, w: w, h: h };
        }

        function send(ev) {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            ev.surface = surface();
            ws.send(JSON.stringify(ev));
        }

        function show(text, sticky) {
            status.textContent = text;
            status.style.display = 'block';
            clearTimeout(statusTimer);
            if (!sticky) statusTimer = setTimeout(() => { status.style.display = 'none'; }, 3000);
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(proto + '//' + location.host + '/api/session/input');
            ws.onmessage = (m) => {
                const msg = JSON.parse(m.data);
                if (msg.type === 'indicator') {
                    cursor.style.display = msg.visible ? 'block' : 'none';
                    cursor.style.left = msg.x + 'px';
                    cursor.style.top = msg.y + 'px';
                } else if (msg.type === 'failure') {
                    show(msg.op + ' failed: ' + msg.error, false);
                } else if (msg.type === 'ended') {
                    show('Session ended: ' + (msg.error || 'stopped'), true);
                }
            };
            ws.onclose = () => setTimeout(connect, 1000);
        }

        view.addEventListener('mousemove', (e) => send({ kind: 'move', x: e.clientX, y: e.clientY }));
        view.addEventListener('mousedown', (e) => {
            e.preventDefault();
            send({ kind: 'down', x: e.clientX, y: e.clientY, button: buttons[e.button] || 'left' });
        });
        window.addEventListener('mouseup', (e) => send({ kind: 'up', x: e.clientX, y: e.clientY, button: buttons[e.button] || 'left' }));
        view.addEventListener('dblclick', (e) => send({ kind: 'dblclick', x: e.clientX, y: e.clientY }));
        view.addEventListener('wheel', (e) => {
            e.preventDefault();
            send({ kind: 'wheel', x: e.clientX, y: e.clientY, deltaX: e.deltaX, deltaY: e.deltaY });
        }, { passive: false });
        view.addEventListener('mouseleave', () => send({ kind: 'leave', x: 0, y: 0 }));
        view.addEventListener('contextmenu', (e) => e.preventDefault());

        connect();
    })();
    </script>
</body>
</html>`
